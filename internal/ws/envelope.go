package ws

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmoreira/interchat/internal/hub"
	"github.com/dmoreira/interchat/internal/models"
)

// envelope is the wire framing for both directions: an event name plus its
// payload. Matches the protocol the web client speaks (joinRoom, leaveRoom,
// sendMessage in; message, userJoined, userLeft, notification out).
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type roomUserPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type sendMessagePayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

// decodeInbound turns one wire frame into a typed event. Unknown event names
// and malformed ids are decode errors; the read loop reports them back on the
// connection without dispatching anything.
func decodeInbound(data []byte) (hub.Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case "joinRoom", "leaveRoom":
		var p roomUserPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
		roomID, userID, err := parseIDs(p.RoomID, p.UserID)
		if err != nil {
			return nil, err
		}
		if env.Event == "joinRoom" {
			return hub.JoinRoom{RoomID: roomID, UserID: userID}, nil
		}
		return hub.LeaveRoom{RoomID: roomID, UserID: userID}, nil

	case "sendMessage":
		var p sendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode sendMessage payload: %w", err)
		}
		roomID, userID, err := parseIDs(p.RoomID, p.UserID)
		if err != nil {
			return nil, err
		}
		return hub.SendMessage{
			RoomID:   roomID,
			UserID:   userID,
			Type:     models.MessageType(p.Type),
			Content:  p.Content,
			ImageURL: p.ImageURL,
		}, nil

	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}

func parseIDs(room, user string) (uuid.UUID, uuid.UUID, error) {
	roomID, err := uuid.Parse(room)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid roomId %q", room)
	}
	userID, err := uuid.Parse(user)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid userId %q", user)
	}
	return roomID, userID, nil
}

// encodeOutbound frames a typed event for the wire.
func encodeOutbound(ev hub.Outbound) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Event(), err)
	}
	frame, err := json.Marshal(envelope{Event: ev.Event(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", ev.Event(), err)
	}
	return frame, nil
}

// encodeError frames a transport-level error report.
func encodeError(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"message": msg})
	frame, _ := json.Marshal(envelope{Event: "error", Data: data})
	return frame
}
