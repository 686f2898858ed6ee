package http

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avdeyev/matchlink-server/internal/core"
	"github.com/avdeyev/matchlink-server/internal/proto"
)

func decodeHello(inbound proto.Inbound) (proto.HelloData, error) {
	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return hello, fmt.Errorf("decode hello: %w", err)
	}
	return hello, nil
}

func decodeOpen(inbound proto.Inbound) (proto.OpenData, error) {
	var open proto.OpenData
	if err := json.Unmarshal(inbound.Data, &open); err != nil {
		return open, fmt.Errorf("decode open: %w", err)
	}
	if open.PeerID <= 0 {
		return open, errors.New("peer_id is required")
	}
	return open, nil
}

func decodeMsg(inbound proto.Inbound) (proto.MsgData, error) {
	var msg proto.MsgData
	if err := json.Unmarshal(inbound.Data, &msg); err != nil {
		return msg, fmt.Errorf("decode msg: %w", err)
	}
	if msg.To <= 0 {
		return msg, errors.New("to is required")
	}
	return msg, nil
}

// errorToProto maps hub errors onto wire errors.
func errorToProto(err error) *proto.Error {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return &proto.Error{Code: ce.Code, Msg: ce.Message}
	}
	return &proto.Error{Code: "internal", Msg: "internal error"}
}

func messageData(m core.Message) proto.MessageData {
	data := proto.MessageData{
		ID:       m.ID,
		Key:      m.ConversationKey,
		From:     m.SenderID,
		FromName: m.SenderName,
		To:       m.RecipientID,
		Text:     m.Body,
		TS:       m.CreatedAt.Unix(),
	}
	if m.ReadAt != nil {
		ts := m.ReadAt.Unix()
		data.ReadAt = &ts
	}
	return data
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventUserOnline:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserOnline,
			Data:  proto.PresenceData{UserID: event.UserID, Username: event.Username},
		}

	case core.EventUserOffline:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserOffline,
			Data:  proto.PresenceData{UserID: event.UserID, Username: event.Username},
		}

	case core.EventOnlineRoster:
		users := make([]proto.RosterUser, 0, len(event.Roster))
		for _, entry := range event.Roster {
			users = append(users, proto.RosterUser{UserID: entry.UserID, Username: entry.Username})
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventOnlineRoster,
			Data:  proto.RosterData{Users: users},
		}

	case core.EventConversationOpened:
		messages := make([]proto.MessageData, 0, len(event.Messages))
		for _, m := range event.Messages {
			messages = append(messages, messageData(m))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventConversationOpened,
			Data:  proto.ConversationData{Key: event.ConversationKey, Messages: messages},
		}

	case core.EventMessageReceived:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageReceived,
			Data: proto.MessageReceivedData{
				Key:             event.ConversationKey,
				Message:         messageData(event.Message),
				ReadImmediately: event.ReadImmediately,
			},
		}

	case core.EventNewMessageNotification:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessageNotification,
			Data:  proto.NotificationData{FromUserID: event.UserID, FromUsername: event.Username},
		}

	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
