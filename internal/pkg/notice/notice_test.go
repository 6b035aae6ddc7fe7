package notice

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestConsole(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Success("saved", "schedule stored")
	c.Error("failed", "appliance unreachable")

	assert.Equal(t, "[saved] schedule stored\n[failed] appliance unreachable\n", buf.String())
}

func TestMultiAndFunc(t *testing.T) {
	r := NewRecorder()
	var got []Notice
	m := Multi{r, Func(func(n Notice) { got = append(got, n) })}

	m.Info("notice", "at least one weekday")
	m.Success("ok", "done")

	assert.Equal(t, 1, r.Count(LevelInfo))
	assert.Equal(t, 1, r.Count(LevelSuccess))
	assert.Equal(t, []Notice{
		{Level: LevelInfo, Title: "notice", Msg: "at least one weekday"},
		{Level: LevelSuccess, Title: "ok", Msg: "done"},
	}, got)
}
