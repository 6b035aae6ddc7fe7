package notice

import "sync"

// Recorder records notices for test assertions.
type Recorder struct {
	mu      sync.Mutex
	Notices []Notice
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Success(title, msg string) { r.add(LevelSuccess, title, msg) }
func (r *Recorder) Info(title, msg string)    { r.add(LevelInfo, title, msg) }
func (r *Recorder) Error(title, msg string)   { r.add(LevelError, title, msg) }

func (r *Recorder) add(level Level, title, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, Notice{Level: level, Title: title, Msg: msg})
}

// Count returns how many notices of the given level were raised.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.Notices {
		if v.Level == level {
			n++
		}
	}
	return n
}
