package engine

import (
	"github.com/schollz/progressbar/v3"
)

// initProgressBar renders progress in hours of virtual time. A negative
// maxTicks gives a spinner.
func initProgressBar(maxTicks int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
