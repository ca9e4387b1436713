// Command snakeclient connects to a snake server over websocket, starts a
// game and follows it until game over. With --tui it draws the board in the
// terminal and the arrow keys steer the snake.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/snakeserver/game/engine"
	"github.com/wricardo/mcp-training/snakeserver/game/service"
	"github.com/wricardo/mcp-training/snakeserver/logging"
	wsTransport "github.com/wricardo/mcp-training/snakeserver/transport/websocket"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "snakeclient: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "snakeclient",
		Usage: "play or watch a game on a snake server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://127.0.0.1:8765/ws", Usage: "websocket endpoint", Sources: cli.EnvVars("SNAKE_URL")},
			&cli.IntFlag{Name: "width", Value: 29, Usage: "grid width"},
			&cli.IntFlag{Name: "height", Value: 19, Usage: "grid height"},
			&cli.FloatFlag{Name: "tick", Value: 0.03, Usage: "seconds per tick"},
			&cli.StringFlag{Name: "preset", Usage: "server preset name"},
			&cli.StringFlag{Name: "policy", Usage: "decision policy (autopilot, random, qlearning)"},
			&cli.StringFlag{Name: "encoding", Value: "json", Usage: "wire encoding (json, msgpack)"},
			&cli.BoolFlag{Name: "tui", Usage: "draw the board and steer with the arrow keys"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "log level"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log, err := logging.New(cmd.String("log-level"), "console")
	if err != nil {
		return err
	}
	defer log.Sync()

	target, err := endpoint(cmd.String("url"), cmd.String("encoding"))
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()
	log.Info("connected", zap.String("url", target))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &client{conn: conn, codec: wsTransport.CodecFor(cmd.String("encoding")), log: log}

	start := startCommand(int(cmd.Int("width")), int(cmd.Int("height")), cmd.Float("tick"), cmd.String("preset"), cmd.String("policy"))
	if err := c.send(service.CommandStartGame, start); err != nil {
		return err
	}

	var out view = textView{w: os.Stdout}
	if cmd.Bool("tui") {
		// stderr output would tear the screen
		c.log = zap.NewNop()
		tv, err := newTUIView(c)
		if err != nil {
			return err
		}
		defer tv.Close()
		out = tv
		go tv.pollKeys(cancel)
	}

	// Closing the connection unblocks the read loop.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	score, err := c.follow(out)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	out.Finish(score)
	return nil
}

// endpoint adds the encoding query parameter to the websocket URL.
func endpoint(raw, encoding string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid url %q: scheme must be ws or wss", raw)
	}
	q := u.Query()
	q.Set("encoding", wsTransport.CodecFor(encoding).Name())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// startCommand builds the start_game data, leaving out unset fields so the
// server defaults apply.
func startCommand(width, height int, tick float64, preset, policy string) map[string]any {
	data := map[string]any{}
	if width > 0 {
		data["grid_width"] = width
	}
	if height > 0 {
		data["grid_height"] = height
	}
	if tick > 0 {
		data["starting_tick"] = tick
	}
	if preset != "" {
		data["preset"] = preset
	}
	if policy != "" {
		data["policy"] = policy
	}
	return data
}

type client struct {
	conn  *websocket.Conn
	codec wsTransport.Codec
	log   *zap.Logger
	mu    sync.Mutex
}

func (c *client) send(event string, data map[string]any) error {
	msg, err := c.codec.Encode(wsTransport.Frame{Event: event, Data: data})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(c.codec.MessageType(), msg)
}

// follow reads frames until game_over and returns the final score.
func (c *client) follow(out view) (int, error) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		u, err := decodeUpdate(c.codec.Name(), msg)
		if err != nil {
			c.log.Warn("skipping frame", zap.Error(err))
			continue
		}
		switch u.Event {
		case service.EventGameState:
			out.Show(u)
		case service.EventServerError:
			c.log.Warn("server error", zap.String("message", u.Message))
			out.Error(u.Message)
		case service.EventGameOver:
			return u.FinalScore, nil
		}
	}
}

// update is one decoded server frame.
type update struct {
	Event      string
	Phase      string
	Snapshot   engine.Snapshot
	FinalScore int
	Message    string
}

var errUnknownEvent = errors.New("unknown event")

func decodeUpdate(encoding string, msg []byte) (update, error) {
	var (
		u         update
		data      []byte
		unmarshal func([]byte, any) error
	)
	if encoding == (wsTransport.MsgpackCodec{}).Name() {
		var env struct {
			Event string             `msgpack:"event"`
			Data  msgpack.RawMessage `msgpack:"data"`
		}
		if err := msgpack.Unmarshal(msg, &env); err != nil {
			return u, err
		}
		u.Event, data, unmarshal = env.Event, env.Data, msgpack.Unmarshal
	} else {
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg, &env); err != nil {
			return u, err
		}
		u.Event, data, unmarshal = env.Event, env.Data, json.Unmarshal
	}

	switch u.Event {
	case service.EventGameState:
		var p service.GameStatePayload
		if err := unmarshal(data, &p); err != nil {
			return u, fmt.Errorf("game_state: %w", err)
		}
		u.Phase, u.Snapshot = p.Event, p.Payload
	case service.EventGameOver:
		var p service.GameOverPayload
		if err := unmarshal(data, &p); err != nil {
			return u, fmt.Errorf("game_over: %w", err)
		}
		u.FinalScore = p.FinalScore
	case service.EventServerError:
		var p service.ServerErrorPayload
		if err := unmarshal(data, &p); err != nil {
			return u, fmt.Errorf("server_error: %w", err)
		}
		u.Message = p.Message
	default:
		return u, fmt.Errorf("%w %q", errUnknownEvent, u.Event)
	}
	return u, nil
}

// view receives the game as it is played.
type view interface {
	Show(u update)
	Error(message string)
	Finish(score int)
}

type textView struct {
	w io.Writer
}

func (v textView) Show(u update) { fmt.Fprintln(v.w, formatUpdate(u)) }

func (v textView) Error(message string) { fmt.Fprintf(v.w, "server error: %s\n", message) }

func (v textView) Finish(score int) { fmt.Fprintf(v.w, "game over, final score %d\n", score) }

func formatUpdate(u update) string {
	s := u.Snapshot
	head := "-"
	if len(s.Snake) > 0 {
		head = fmt.Sprintf("(%d,%d)", s.Snake[0][0], s.Snake[0][1])
	}
	return fmt.Sprintf("%-9s frame=%-5d score=%-4d len=%-3d head=%s food=(%d,%d) heading=%s",
		u.Phase, s.FrameCount, s.Score, len(s.Snake), head, s.Food[0], s.Food[1], s.Heading)
}
