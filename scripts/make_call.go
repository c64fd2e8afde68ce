// make_call places a test call against a running relay: it streams a raw
// 16 kHz mono PCM16 file to the session endpoint in real time, prints every
// event received and optionally saves the synthesized audio.
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/voxrelay/pkg/events"
)

const (
	sampleRate   = 16000
	bytesPerTick = sampleRate * 2 / 10 // 100ms of PCM16
)

func main() {
	addr := flag.String("addr", "ws://localhost:8000/ws", "relay session endpoint")
	audioPath := flag.String("audio", "", "raw 16 kHz mono PCM16 file to stream")
	outPath := flag.String("out", "", "file receiving decoded synthesis audio")
	assemblyAIKey := flag.String("assemblyai_key", "", "")
	murfKey := flag.String("murf_key", "", "")
	geminiKey := flag.String("gemini_key", "", "")
	tmdbKey := flag.String("tmdb_key", "", "")
	wait := flag.Duration("wait", 15*time.Second, "how long to keep listening after the audio ends")
	flag.Parse()
	if *audioPath == "" {
		fmt.Println("usage: make_call -audio=question.pcm [-addr=ws://host:8000/ws] [-out=reply.wav]")
		os.Exit(1)
	}

	target, err := url.Parse(*addr)
	if err != nil {
		fmt.Println("addr error:", err)
		os.Exit(1)
	}
	q := target.Query()
	for k, v := range map[string]string{
		"assemblyai_key": *assemblyAIKey,
		"murf_key":       *murfKey,
		"gemini_key":     *geminiKey,
		"tmdb_key":       *tmdbKey,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	target.RawQuery = q.Encode()

	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		fmt.Println("audio error:", err)
		os.Exit(1)
	}
	var out *os.File
	if *outPath != "" {
		if out, err = os.Create(*outPath); err != nil {
			fmt.Println("out error:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	ws, _, err := websocket.DefaultDialer.Dial(target.String(), nil)
	if err != nil {
		fmt.Println("dial error:", err)
		os.Exit(1)
	}
	defer ws.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				fmt.Println("connection closed:", err)
				return
			}
			ev, err := events.Decode(data)
			if err != nil {
				fmt.Println("bad event:", err)
				continue
			}
			switch ev.Type {
			case events.TypeMurfAudioChunk:
				fmt.Printf("%s (%d bytes base64)\n", ev.Type, len(ev.Audio))
				if out != nil {
					if raw, err := base64.StdEncoding.DecodeString(ev.Audio); err == nil {
						_, _ = out.Write(raw)
					}
				}
			default:
				fmt.Printf("%s %s\n", ev.Type, data)
			}
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for off := 0; off < len(audio); off += bytesPerTick {
		end := min(off+bytesPerTick, len(audio))
		if err := ws.WriteMessage(websocket.BinaryMessage, audio[off:end]); err != nil {
			fmt.Println("send error:", err)
			os.Exit(1)
		}
		<-ticker.C
	}

	select {
	case <-done:
	case <-time.After(*wait):
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
}
