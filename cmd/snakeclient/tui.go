package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/wricardo/mcp-training/snakeserver/game/engine"
	"github.com/wricardo/mcp-training/snakeserver/game/service"
)

var (
	borderStyle = tcell.StyleDefault.Foreground(tcell.ColorGray)
	headStyle   = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	bodyStyle   = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	foodStyle   = tcell.StyleDefault.Foreground(tcell.ColorRed)
	textStyle   = tcell.StyleDefault
)

type tuiView struct {
	screen tcell.Screen
	client *client
	done   chan struct{}

	mu       sync.Mutex
	last     engine.Snapshot
	status   string
	finished bool
	closing  sync.Once
}

func newTUIView(c *client) (*tuiView, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize screen: %w", err)
	}
	screen.HideCursor()
	return &tuiView{screen: screen, client: c, done: make(chan struct{})}, nil
}

func (v *tuiView) Show(u update) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = u.Snapshot
	v.status = formatUpdate(u)
	draw(v.screen, v.last, v.status)
}

func (v *tuiView) Error(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = "server error: " + message
	draw(v.screen, v.last, v.status)
}

func (v *tuiView) Finish(score int) {
	v.mu.Lock()
	v.finished = true
	v.status = fmt.Sprintf("GAME OVER, final score %d. Press any key.", score)
	draw(v.screen, v.last, v.status)
	v.mu.Unlock()

	<-v.done
}

func (v *tuiView) Close() {
	v.closing.Do(v.screen.Fini)
}

// pollKeys turns arrow keys into turn commands until the user quits. Once
// the game is over any key quits.
func (v *tuiView) pollKeys(quit context.CancelFunc) {
	defer close(v.done)
	defer quit()
	for {
		switch ev := v.screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			v.screen.Sync()
		case *tcell.EventKey:
			v.mu.Lock()
			finished := v.finished
			v.mu.Unlock()
			if finished || isQuit(ev) {
				return
			}
			dir, ok := keyDirection(ev)
			if !ok {
				continue
			}
			if err := v.client.send(service.CommandTurn, map[string]any{"direction": dir.String()}); err != nil {
				return
			}
		}
	}
}

func isQuit(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		return ev.Rune() == 'q'
	}
	return false
}

// keyDirection maps arrow keys and WASD to a heading.
func keyDirection(ev *tcell.EventKey) (engine.Direction, bool) {
	switch ev.Key() {
	case tcell.KeyUp:
		return engine.Up, true
	case tcell.KeyDown:
		return engine.Down, true
	case tcell.KeyLeft:
		return engine.Left, true
	case tcell.KeyRight:
		return engine.Right, true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'w':
			return engine.Up, true
		case 's':
			return engine.Down, true
		case 'a':
			return engine.Left, true
		case 'd':
			return engine.Right, true
		}
	}
	return 0, false
}

// draw renders the board inside a border with the status line below it.
// Board cell (x, y) lands on screen column x+1, row y+1.
func draw(screen tcell.Screen, s engine.Snapshot, status string) {
	screen.Clear()

	w, h := s.GridWidth, s.GridHeight
	if w > 0 && h > 0 {
		for x := 0; x <= w+1; x++ {
			screen.SetContent(x, 0, '#', nil, borderStyle)
			screen.SetContent(x, h+1, '#', nil, borderStyle)
		}
		for y := 1; y <= h; y++ {
			screen.SetContent(0, y, '#', nil, borderStyle)
			screen.SetContent(w+1, y, '#', nil, borderStyle)
		}
		screen.SetContent(s.Food[0]+1, s.Food[1]+1, '*', nil, foodStyle)
		for i, c := range s.Snake {
			r, style := 'o', bodyStyle
			if i == 0 {
				r, style = '@', headStyle
			}
			screen.SetContent(c[0]+1, c[1]+1, r, nil, style)
		}
	}

	for i, r := range []rune(status) {
		screen.SetContent(i, h+2, r, nil, textStyle)
	}
	screen.Show()
}
