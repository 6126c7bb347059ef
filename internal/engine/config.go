package engine

import (
	"time"
	"tradesim/internal/matching"

	"github.com/shopspring/decimal"
)

const defaultPollLimit = 64

type PortfolioConfig struct {
	initialCash       decimal.Decimal
	credit            decimal.Decimal
	allowShortSelling bool
}

func NewPortfolioConfig(initialCash decimal.Decimal, allowShortSelling bool) *PortfolioConfig {
	return &PortfolioConfig{
		initialCash:       initialCash,
		credit:            decimal.Zero,
		allowShortSelling: allowShortSelling,
	}
}

// WithCredit sets the credit line every account starts with.
func (c *PortfolioConfig) WithCredit(credit decimal.Decimal) *PortfolioConfig {
	c.credit = credit
	return c
}

type SimulationConfig struct {
	pollLimit  int
	start      time.Time
	end        time.Time
	matcher    matching.TriggerMatcher
	commission matching.CommissionModel
}

// NewSimulationConfig describes the replayed period. start also seeds the
// playback clock; a zero start leaves the clock at the zero time until the
// first event.
func NewSimulationConfig(start, end time.Time, pollLimit int) *SimulationConfig {
	if pollLimit <= 0 {
		pollLimit = defaultPollLimit
	}
	return &SimulationConfig{
		pollLimit:  pollLimit,
		start:      start,
		end:        end,
		matcher:    matching.NoTrigger{},
		commission: matching.NoCommission{},
	}
}

func (c *SimulationConfig) WithTriggerMatcher(m matching.TriggerMatcher) *SimulationConfig {
	c.matcher = m
	return c
}

func (c *SimulationConfig) WithCommission(m matching.CommissionModel) *SimulationConfig {
	c.commission = m
	return c
}

type ReportingConfig struct {
	sharpeRiskFreeRate decimal.Decimal
	printTrades        bool
	showProgress       bool
	reportName         string
	filePath           string
}

func NewReportingConfig(sharpeRiskFreeRate decimal.Decimal, reportFile bool, reportName string, filePath string) *ReportingConfig {
	return &ReportingConfig{
		sharpeRiskFreeRate: sharpeRiskFreeRate,
		printTrades:        reportFile,
		reportName:         reportName,
		filePath:           filePath,
	}
}

func (c *ReportingConfig) WithProgress(show bool) *ReportingConfig {
	c.showProgress = show
	return c
}
