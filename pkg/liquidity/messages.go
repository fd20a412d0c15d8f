package liquidity

import "github.com/clearportx/amm-client/pkg/domain"

const genericConsumeMessage = "Liquidity settlement failed. Your transfers are on the ledger and can be settled again or will expire at their deadline."

var consumeMessages = map[string]string{
	domain.CodeMissingInboundTransfers: "The backend cannot see both inbound transfers for this pool yet. Wait a few seconds and retry settlement.",
	"PRECONDITION_FAILED":              "The inbound transfers do not match the pool or have expired.",
	"CONFLICT":                         "The pool changed while settling. Refresh the pool and retry.",
	"LEDGER_REJECTED":                  "The ledger rejected the settlement transaction.",
	"TIMEOUT":                          "Settlement timed out. The transfers may still be processed; check again shortly.",
	"NOT_FOUND":                        "No inbound transfers were found for this request.",
	"FORBIDDEN":                        "The backend is not allowed to settle for this party.",
	"VALIDATION":                       "The settlement request was rejected as invalid.",
	"RATE_LIMITED":                     "The backend is busy. Retry settlement in a moment.",
	domain.CodeStaleVisibility:         "The pool was still not visible after a retry. Refresh and try again.",
}

// ConsumeMessage returns the user-facing message for a settlement error code.
func ConsumeMessage(code string) string {
	if msg, ok := consumeMessages[code]; ok {
		return msg
	}
	return genericConsumeMessage
}
