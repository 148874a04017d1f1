package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

// Any status may follow any other.
var knownStatus = map[Status]bool{
	StatusPending:   true,
	StatusPaid:      true,
	StatusFailed:    true,
	StatusCancelled: true,
	StatusShipped:   true,
	StatusCompleted: true,
	StatusRefunded:  true,
}

func (s Status) Valid() bool { return knownStatus[s] }

type PaymentStatus string

const (
	PaymentUnpaid         PaymentStatus = "unpaid"
	PaymentRequiresAction PaymentStatus = "requires_action"
	PaymentPaid           PaymentStatus = "paid"
	PaymentRefunded       PaymentStatus = "refunded"
	PaymentFailed         PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentRequiresAction, PaymentPaid, PaymentRefunded, PaymentFailed:
		return true
	}
	return false
}
