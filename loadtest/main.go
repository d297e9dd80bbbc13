package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fundify-chat/internal/auth"
	"fundify-chat/internal/chat"
	"fundify-chat/internal/logger"
)

var (
	baseURL  = flag.String("base", "http://localhost:5001", "server base URL")
	pairs    = flag.Int("pairs", 50, "wallet pairs (each pair shares one room)") // ⚠️ Start small
	msgCount = flag.Int("msgs", 20, "messages per wallet")
	secret   = flag.String("secret", "", "JWT secret; set when the server runs with auth")
	issuer   = flag.String("issuer", "fundify-chat", "JWT issuer")
	pause    = flag.Duration("pause", 10*time.Millisecond, "pause between messages")
)

var (
	log      zerolog.Logger
	tokens   *auth.Service
	sent     atomic.Int64
	received atomic.Int64
)

func main() {
	flag.Parse()
	log = logger.New(logger.Config{Level: "info", Pretty: true, Service: "loadtest"}, nil)
	if *secret != "" {
		tokens = auth.NewService(*secret, *issuer, time.Hour)
	}

	log.Info().Int("wallets", *pairs*2).Int("msgs", *msgCount).Msg("🔥 STARTING STRESS TEST")
	start := time.Now()
	var wg sync.WaitGroup

	// Pairs: wallet 2i talks to wallet 2i+1.
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Info().
		Int64("sent", sent.Load()).
		Int64("received", received.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("✅ LOAD TEST COMPLETE")
}

func walletFor(n int) string {
	return fmt.Sprintf("0x%040x", n+1)
}

func runPair(pairID int) {
	walletA := walletFor(pairID * 2)
	walletB := walletFor(pairID*2 + 1)

	tokenA, tokenB := mint(walletA), mint(walletB)

	roomID, err := createRoom(tokenA, walletA, walletB)
	if err != nil {
		log.Error().Err(err).Int("pair", pairID).Msg("❌ Create Chat Failed")
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, tokenA, roomID, walletA, walletB)
	go spamChat(&wsWg, tokenB, roomID, walletB, walletA)
	wsWg.Wait()
}

func mint(addr string) string {
	if tokens == nil {
		return ""
	}
	tok, err := tokens.Issue(addr)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to mint token")
	}
	return tok
}

func createRoom(token, walletA, walletB string) (string, error) {
	body, _ := json.Marshal(chat.CreateRoomRequest{
		Label:     "loadtest",
		WalletA:   walletA,
		WalletB:   walletB,
		CreatedBy: walletA,
	})
	req, _ := http.NewRequest(http.MethodPost, *baseURL+"/api/chat/create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var data chat.CreateRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	return data.ChatRoomID, nil
}

func wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(*baseURL, "http") + "/ws"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func emit(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(chat.Frame{Event: event, Data: raw})
}

func spamChat(wg *sync.WaitGroup, token, roomID, sender, receiver string) {
	defer wg.Done()
	l := log.With().Str(logger.FieldWallet, sender).Logger()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(token), nil)
	if err != nil {
		l.Error().Err(err).Msg("❌ WS Connect Fail")
		return
	}
	defer conn.Close()

	if err := emit(conn, chat.EventJoinRoom, roomID); err != nil {
		l.Error().Err(err).Msg("❌ Join Fail")
		return
	}

	// Count everything the room fans out to us until the socket closes.
	go func() {
		for {
			var f chat.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event == chat.EventReceiveMessage {
				received.Add(1)
			}
		}
	}()

	// Spam Loop
	for i := 0; i < *msgCount; i++ {
		err := emit(conn, chat.EventSendMessage, chat.SendRequest{
			ChatRoomID: roomID,
			Sender:     sender,
			Receiver:   receiver,
			Message:    fmt.Sprintf("LoadTest Msg %d from %s", i, sender),
		})
		if err != nil {
			l.Error().Err(err).Msg("❌ Send Fail")
			break
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(*pause)
	}
	// Let the last broadcasts arrive before closing.
	time.Sleep(500 * time.Millisecond)
	l.Info().Int("msgs", *msgCount).Msg("✅ finished sending")
}
