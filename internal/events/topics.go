package events

// Topic constants for domain events emitted by the engine.
const (
	TopicInvoiceFinalized = "invoice.finalized"
	TopicStockRestocked   = "stock.restocked"
)

// DefaultTopics returns the topics the engine emits.
func DefaultTopics() []string {
	return []string{TopicInvoiceFinalized, TopicStockRestocked}
}
