package cyclo

import (
	"github.com/cyclofinance/cy-ledger/epoch"
)

// DefaultEpochs returns the rFLR reward epoch schedule.
// Source: https://flare.network/news/a-guide-to-rflr-rewards
func DefaultEpochs() epoch.Schedule {
	schedule, err := epoch.NewSchedule([]epoch.Record{
		// 2024
		{Label: "2024-07-06T12:00:00Z", Start: 1720267200, Days: 30},
		{Label: "2024-08-05T12:00:00Z", Start: 1722859200, Days: 30},
		{Label: "2024-09-04T12:00:00Z", Start: 1725451200, Days: 30},
		{Label: "2024-10-04T12:00:00Z", Start: 1728043200, Days: 30},
		{Label: "2024-11-03T12:00:00Z", Start: 1730635200, Days: 30},
		{Label: "2024-12-03T12:00:00Z", Start: 1733227200, Days: 30},

		// 2025
		{Label: "2025-01-02T12:00:00Z", Start: 1735819200, Days: 30},
		{Label: "2025-02-01T12:00:00Z", Start: 1738411200, Days: 30},
		{Label: "2025-03-03T12:00:00Z", Start: 1741003200, Days: 30},
		{Label: "2025-04-02T12:00:00Z", Start: 1743595200, Days: 30},
		{Label: "2025-05-02T12:00:00Z", Start: 1746187200, Days: 30},
		{Label: "2025-06-01T12:00:00Z", Start: 1748779200, Days: 30},
		{Label: "2025-07-01T12:00:00Z", Start: 1751371200, Days: 30},
		{Label: "2025-07-31T12:00:00Z", Start: 1753963200, Days: 30},
		{Label: "2025-08-30T12:00:00Z", Start: 1756555200, Days: 30},
		{Label: "2025-09-29T12:00:00Z", Start: 1759147200, Days: 30},
		{Label: "2025-10-29T12:00:00Z", Start: 1761739200, Days: 30},
		{Label: "2025-11-28T12:00:00Z", Start: 1764331200, Days: 30},
		{Label: "2025-12-28T12:00:00Z", Start: 1766923200, Days: 30},

		// 2026
		{Label: "2026-01-27T12:00:00Z", Start: 1769515200, Days: 30},
		{Label: "2026-02-26T12:00:00Z", Start: 1772107200, Days: 30},
		{Label: "2026-03-28T12:00:00Z", Start: 1774699200, Days: 30},
		{Label: "2026-04-27T12:00:00Z", Start: 1777291200, Days: 30},
		{Label: "2026-05-27T12:00:00Z", Start: 1779883200, Days: 30},
	})
	if err != nil {
		panic(err) // the compiled-in table is validated by tests
	}
	return schedule
}
