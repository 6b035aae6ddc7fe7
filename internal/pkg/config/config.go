package config

import "time"

const (
	TopicSchedule  = "schedule"
	TopicControl   = "control"
	TopicLog       = "log"
	TopicKeepalive = "dummy"

	EventPath        = "event"
	SchedulePath     = "schedule_ctrl"
	ValveCtrlPath    = "valve_ctrl"
	ValveFlowPath    = "valve_flow"
	LogViewPath      = "log_view"
	LogClearPath     = "log_clear"
	SysinfoPath      = "sysinfo"
	JSONPCallbackKey = "callback"

	ReconnectBackoff   = 10 * time.Second
	FlowPollInterval   = 500 * time.Millisecond
	FlowZeroThreshold  = 10
	FlowMax            = 12.0
	SysinfoPollSpec    = "@every 10s"
	DefaultAPIURL      = "http://localhost:5000/rasp-water/api"
	DefaultPort        = "8080"
	DefaultTopicPrefix = "rasp-water"
	DefaultTimeout     = 5 * time.Second

	BackupPollSpec       = "@every 6h"
	DefaultRetentionRows = 10000
	DatadogFlushInterval = time.Minute
)
