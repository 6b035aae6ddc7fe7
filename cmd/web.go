package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/applog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/event"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/schedule"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/sysinfo"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
	gmux "github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	post = "post"
	get  = "get"
)

type WebServer struct {
	httpServer *http.Server
	panel      *panel
	logger     *zap.SugaredLogger
}

type entryView struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Summary string `json:"summary"`
}

type scheduleView struct {
	Current schedule.State  `json:"current"`
	Saved   *schedule.State `json:"saved"`
	Dirty   bool            `json:"dirty"`
	Error   bool            `json:"error"`
	Entries []entryView     `json:"entries"`
}

type valveView struct {
	valve.State
	Loading   bool `json:"loading"`
	Watching  bool `json:"watching"`
	CtrlError bool `json:"ctrl_error"`
	FlowError bool `json:"flow_error"`
}

type logEntryView struct {
	Date    string `json:"date"`
	Message string `json:"message"`
	Since   string `json:"since"`
}

type logView struct {
	Entries []logEntryView `json:"entries"`
	Error   bool           `json:"error"`
}

type sysinfoView struct {
	Info      *sysinfo.Info `json:"info"`
	Error     bool          `json:"error"`
	EventsUp  bool          `json:"events_up"`
	Listeners int           `json:"listeners"`
}

type panelView struct {
	Schedule scheduleView `json:"schedule"`
	Valve    valveView    `json:"valve"`
	Log      logView      `json:"log"`
	Sysinfo  sysinfoView  `json:"sysinfo"`
}

type valveRequest struct {
	On     bool `json:"on"`
	Period int  `json:"period"`
}

type slotRequest struct {
	IsActive *bool                    `json:"is_active"`
	Time     *string                  `json:"time"`
	Period   *int                     `json:"period"`
	Weekdays *[schedule.DayCount]bool `json:"wday"`
}

func newWebServer(port string, p *panel, logger *zap.SugaredLogger) WebServer {
	s := WebServer{
		panel:  p,
		logger: logger,
	}
	s.httpServer = &http.Server{
		Handler:      s.router(),
		Addr:         "0.0.0.0:" + port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	return s
}

func (s WebServer) router() *gmux.Router {
	router := gmux.NewRouter().StrictSlash(true)
	router.Handle("/health", http.HandlerFunc(s.healthHandler)).Methods(get)
	router.Handle("/metrics", s.panel.metrics.Handler()).Methods(get)
	router.Handle("/ws", http.HandlerFunc(s.serveWs))
	router.Handle("/api/state", http.HandlerFunc(s.stateHandler)).Methods(get)
	router.Handle("/api/schedule", http.HandlerFunc(s.scheduleHandler)).Methods(get)
	router.Handle("/api/schedule/save", http.HandlerFunc(s.scheduleSaveHandler)).Methods(post)
	router.Handle("/api/schedule/{slot:[0-9]+}/wday/{day:[0-9]+}", http.HandlerFunc(s.weekdayHandler)).Methods(post)
	router.Handle("/api/schedule/{slot:[0-9]+}", http.HandlerFunc(s.slotHandler)).Methods(post)
	router.Handle("/api/valve", http.HandlerFunc(s.valveHandler)).Methods(get)
	router.Handle("/api/valve", http.HandlerFunc(s.valveSetHandler)).Methods(post)
	router.Handle("/api/log", http.HandlerFunc(s.logHandler)).Methods(get)
	router.Handle("/api/log/clear", http.HandlerFunc(s.logClearHandler)).Methods(post)
	router.Handle("/api/sysinfo", http.HandlerFunc(s.sysinfoHandler)).Methods(get)
	return router
}

func (s WebServer) snapshot() panelView {
	return panelView{
		Schedule: s.scheduleView(),
		Valve:    s.valveView(),
		Log:      s.logView(),
		Sysinfo:  s.sysinfoView(),
	}
}

func (s WebServer) scheduleView() scheduleView {
	sy := s.panel.schedule
	v := scheduleView{
		Current: sy.Current(),
		Dirty:   sy.Dirty(),
		Error:   sy.Error(),
	}
	if saved, ok := sy.Saved(); ok {
		v.Saved = &saved
	}
	for i := 0; i < schedule.SlotCount; i++ {
		e := sy.Entry(i)
		v.Entries = append(v.Entries, entryView{ID: e.ID, Index: e.Index(), Summary: v.Current[i].Describe()})
	}
	return v
}

func (s WebServer) valveView() valveView {
	c := s.panel.valve
	return valveView{
		State:     c.State(),
		Loading:   c.Loading(),
		Watching:  c.Watching(),
		CtrlError: c.CtrlError(),
		FlowError: c.FlowError(),
	}
}

func (s WebServer) logView() logView {
	now := time.Now()
	v := logView{Entries: []logEntryView{}, Error: s.panel.log.Error()}
	for _, e := range s.panel.log.Entries() {
		v.Entries = append(v.Entries, logEntryView{Date: e.Date, Message: e.Message, Since: applog.Since(e.Time, now)})
	}
	return v
}

func (s WebServer) sysinfoView() sysinfoView {
	v := sysinfoView{
		Error:     s.panel.sysinfo.Error(),
		EventsUp:  s.panel.events.State() == event.Open,
		Listeners: s.panel.hub.count(),
	}
	if info, ok := s.panel.sysinfo.Info(); ok {
		v.Info = &info
	}
	return v
}

func (s WebServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("encoding response: %s", err)
	}
}

// status maps an appliance failure to 502. The view is written either way
// with the error flag set.
func status(err error) int {
	if err != nil {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func (s WebServer) entry(req *http.Request) *schedule.Entry {
	i, err := strconv.Atoi(gmux.Vars(req)["slot"])
	if err != nil {
		return nil
	}
	return s.panel.schedule.Entry(i)
}

func (s WebServer) healthHandler(w http.ResponseWriter, req *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "up",
		"events": s.panel.events.State().String(),
	})
}

func (s WebServer) stateHandler(w http.ResponseWriter, req *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s WebServer) scheduleHandler(w http.ResponseWriter, req *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scheduleView())
}

func (s WebServer) scheduleSaveHandler(w http.ResponseWriter, req *http.Request) {
	err := s.panel.schedule.Save(req.Context())
	s.writeJSON(w, status(err), s.scheduleView())
}

func (s WebServer) weekdayHandler(w http.ResponseWriter, req *http.Request) {
	e := s.entry(req)
	day, err := strconv.Atoi(gmux.Vars(req)["day"])
	if e == nil || err != nil || day >= schedule.DayCount {
		http.Error(w, "Schedule entry not found", http.StatusNotFound)
		return
	}
	if err := e.ToggleWeekday(day); errors.Is(err, schedule.ErrNoWeekday) {
		s.writeJSON(w, http.StatusConflict, s.scheduleView())
		return
	}
	s.writeJSON(w, http.StatusOK, s.scheduleView())
}

func (s WebServer) slotHandler(w http.ResponseWriter, req *http.Request) {
	e := s.entry(req)
	if e == nil {
		http.Error(w, "Schedule entry not found", http.StatusNotFound)
		return
	}
	var body slotRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "Error parsing request", http.StatusBadRequest)
		return
	}
	// a repaired weekday set is still committed, the notice tells the user
	e.Edit(func(slot *schedule.Slot) {
		if body.IsActive != nil {
			slot.IsActive = *body.IsActive
		}
		if body.Time != nil {
			slot.Time = schedule.TimeString(*body.Time)
		}
		if body.Period != nil {
			slot.Period = *body.Period
			if slot.Period < 0 {
				slot.Period = 0
			}
		}
		if body.Weekdays != nil {
			slot.Weekdays = *body.Weekdays
		}
	})
	s.writeJSON(w, http.StatusOK, s.scheduleView())
}

func (s WebServer) valveHandler(w http.ResponseWriter, req *http.Request) {
	s.writeJSON(w, http.StatusOK, s.valveView())
}

func (s WebServer) valveSetHandler(w http.ResponseWriter, req *http.Request) {
	var body valveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "Error parsing request", http.StatusBadRequest)
		return
	}
	err := s.panel.valve.Set(req.Context(), body.On, body.Period)
	s.writeJSON(w, status(err), s.valveView())
}

func (s WebServer) logHandler(w http.ResponseWriter, req *http.Request) {
	s.writeJSON(w, http.StatusOK, s.logView())
}

func (s WebServer) logClearHandler(w http.ResponseWriter, req *http.Request) {
	err := s.panel.log.Clear(req.Context())
	s.writeJSON(w, status(err), s.logView())
}

func (s WebServer) sysinfoHandler(w http.ResponseWriter, req *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sysinfoView())
}
