package config

import "time"

type BudgetConfig struct {
	QuietPeriod  time.Duration
	GraceWindow  time.Duration
	MaxDeferral  time.Duration
	FlushTimeout time.Duration
}

func GetBudgetConfig() BudgetConfig {
	return BudgetConfig{
		QuietPeriod:  getDuration("budget.quiet_period"),
		GraceWindow:  getDuration("budget.grace_window"),
		MaxDeferral:  getDuration("budget.max_deferral"),
		FlushTimeout: getDuration("budget.flush_timeout"),
	}
}
