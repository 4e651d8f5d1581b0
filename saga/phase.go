package saga

import "fmt"

type Phase int

const (
	CREATED Phase = iota
	INTENT_REQUESTED
	INTENT_READY
	AWAITING_PAYMENT_OUTCOME
	PAYMENT_CONFIRMED
	REGISTERING
	SUCCEEDED
	FAILED_RETRYABLE
	FAILED_TERMINAL
	CANCELED
)

var phaseNames = map[Phase]string{
	CREATED:                  "Created",
	INTENT_REQUESTED:         "IntentRequested",
	INTENT_READY:             "IntentReady",
	AWAITING_PAYMENT_OUTCOME: "AwaitingPaymentOutcome",
	PAYMENT_CONFIRMED:        "PaymentConfirmed",
	REGISTERING:              "Registering",
	SUCCEEDED:                "Succeeded",
	FAILED_RETRYABLE:         "FailedRetryable",
	FAILED_TERMINAL:          "FailedTerminal",
	CANCELED:                 "Canceled",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown saga phase %q", s)
}

func (p Phase) IsTerminal() bool {
	return p == SUCCEEDED || p == FAILED_TERMINAL || p == CANCELED
}

// Rank orders the happy path. Only phases from Created to Succeeded have one.
func (p Phase) Rank() int {
	if p >= CREATED && p <= SUCCEEDED {
		return int(p)
	}
	return -1
}

var transitions = map[Phase][]Phase{
	CREATED:                  {INTENT_REQUESTED, FAILED_TERMINAL, CANCELED},
	INTENT_REQUESTED:         {INTENT_READY, FAILED_RETRYABLE, FAILED_TERMINAL, CANCELED},
	INTENT_READY:             {AWAITING_PAYMENT_OUTCOME, PAYMENT_CONFIRMED, FAILED_RETRYABLE, FAILED_TERMINAL, CANCELED},
	AWAITING_PAYMENT_OUTCOME: {PAYMENT_CONFIRMED, FAILED_RETRYABLE, FAILED_TERMINAL, CANCELED},
	PAYMENT_CONFIRMED:        {REGISTERING, FAILED_RETRYABLE, FAILED_TERMINAL, CANCELED},
	REGISTERING:              {SUCCEEDED, FAILED_RETRYABLE, FAILED_TERMINAL},
	FAILED_RETRYABLE: {
		INTENT_REQUESTED, INTENT_READY, AWAITING_PAYMENT_OUTCOME, PAYMENT_CONFIRMED, REGISTERING,
		FAILED_RETRYABLE, FAILED_TERMINAL, CANCELED,
	},
}

func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
