package jobs

// DefaultCron returns the scheduler entries for the nightly and hourly
// maintenance tasks. All times are UTC.
func DefaultCron(alertEmail string) ([]CronRegistration, error) {
	overdue, err := NewOverdueScanTask(OverdueScanPayload{})
	if err != nil {
		return nil, err
	}
	reorder, err := NewReorderScanTask(ReorderScanPayload{AlertEmail: alertEmail})
	if err != nil {
		return nil, err
	}
	snapshot, err := NewCashoutSnapshotTask(CashoutSnapshotPayload{})
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		// Daily at 00:30, after the business day has rolled over.
		{Spec: "30 0 * * *", Task: overdue},
		// Hourly during trading hours.
		{Spec: "0 6-20 * * *", Task: reorder},
		// Nightly at 01:00 for the day that just ended.
		{Spec: "0 1 * * *", Task: snapshot},
	}, nil
}
