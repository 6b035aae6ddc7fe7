// Package notice is the boundary to whatever shows toasts to the user.
package notice

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notifier raises user-visible notices.
type Notifier interface {
	Success(title, msg string)
	Info(title, msg string)
	Error(title, msg string)
}

type Notice struct {
	Level Level  `json:"level"`
	Title string `json:"title"`
	Msg   string `json:"message"`
}

// Console prints notices to a terminal.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	success func(a ...interface{}) string
	info    func(a ...interface{}) string
	err     func(a ...interface{}) string
}

func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = color.Output
	}
	return &Console{
		out:     out,
		success: color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:    color.New(color.FgCyan).SprintFunc(),
		err:     color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

func (c *Console) Success(title, msg string) { c.print(c.success, title, msg) }
func (c *Console) Info(title, msg string)    { c.print(c.info, title, msg) }
func (c *Console) Error(title, msg string)   { c.print(c.err, title, msg) }

func (c *Console) print(paint func(a ...interface{}) string, title, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s\n", paint("["+title+"]"), msg)
}

// Multi fans a notice out to several notifiers in order.
type Multi []Notifier

func (m Multi) Success(title, msg string) {
	for _, n := range m {
		n.Success(title, msg)
	}
}

func (m Multi) Info(title, msg string) {
	for _, n := range m {
		n.Info(title, msg)
	}
}

func (m Multi) Error(title, msg string) {
	for _, n := range m {
		n.Error(title, msg)
	}
}

// Func adapts a function to a Notifier.
type Func func(Notice)

func (f Func) Success(title, msg string) { f(Notice{Level: LevelSuccess, Title: title, Msg: msg}) }
func (f Func) Info(title, msg string)    { f(Notice{Level: LevelInfo, Title: title, Msg: msg}) }
func (f Func) Error(title, msg string)   { f(Notice{Level: LevelError, Title: title, Msg: msg}) }
