package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wiredesk/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// run opens an anonymous user session, subscribes to a chat over WebSocket,
// posts a message over REST and waits for it to come back on the socket.
func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	chatID := flag.String("chat", "smoke-chat", "chat id to use")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var session struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if err := postJSON(ctx, *base+"/api/session", "", nil, &session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fmt.Printf("Session: user=%s\n", session.UserID)

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws?token=" + session.Token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	joinPayload, err := json.Marshal(proto.ChatData{ChatID: *chatID})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoinChat, Data: joinPayload}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	sent := false
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", out.Type)
		if out.Event != "" {
			fmt.Printf(" event=%s", out.Event)
		}
		fmt.Println()

		if out.Error != nil {
			return fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
		}

		switch out.Event {
		case proto.EventSubscribed:
			if sent {
				continue
			}
			body := map[string]any{"chat_id": *chatID, "message": *text}
			if err := postJSON(ctx, *base+"/api/chats/messages/user", session.Token, body, nil); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
			sent = true
		case proto.EventNewMessage:
			var evt proto.EventMessage
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("EventMessage: chat=%s sender=%s/%s text=%q at=%s\n",
				evt.ChatID, evt.SenderType, evt.SenderID, evt.Body, evt.CreatedAt.Format(time.RFC3339Nano))
			return nil
		}
	}
}

func postJSON(ctx context.Context, url, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
