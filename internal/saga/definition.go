package saga

import "fmt"

// StepDef describes one participant of the saga: the source identifier it
// stamps on the envelope and the two topics it consumes.
type StepDef struct {
	Name            string
	Source          string
	ExecuteTopic    string
	CompensateTopic string
}

// Definition is the fixed, versioned step sequence for one saga type. It is
// built once at startup and injected into every handler and the router, so
// the step order lives in exactly one place instead of being scattered through
// business code as string comparisons.
type Definition struct {
	Version       string
	TriggerSource string // source of the service that starts the saga (index -1)
	EndingTopic   string // terminal notify-ending topic
	steps         []StepDef
	bySource      map[string]int
}

// NewDefinition validates and indexes the step sequence.
func NewDefinition(version, triggerSource, endingTopic string, steps []StepDef) (*Definition, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("saga definition %q: at least one step is required", version)
	}
	bySource := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.Source == "" || s.ExecuteTopic == "" || s.CompensateTopic == "" {
			return nil, fmt.Errorf("saga definition %q: step %d is incomplete", version, i)
		}
		if _, dup := bySource[s.Source]; dup {
			return nil, fmt.Errorf("saga definition %q: duplicate source %s", version, s.Source)
		}
		bySource[s.Source] = i
	}
	if _, clash := bySource[triggerSource]; clash {
		return nil, fmt.Errorf("saga definition %q: trigger source %s is also a step", version, triggerSource)
	}
	return &Definition{
		Version:       version,
		TriggerSource: triggerSource,
		EndingTopic:   endingTopic,
		steps:         steps,
		bySource:      bySource,
	}, nil
}

// Steps returns the ordered step sequence.
func (d *Definition) Steps() []StepDef { return d.steps }

// Len returns the number of steps.
func (d *Definition) Len() int { return len(d.steps) }

// Step returns the descriptor at position i.
func (d *Definition) Step(i int) StepDef { return d.steps[i] }

// IndexOf recovers the step position from an envelope source. The trigger
// source maps to -1 (one before the first step) so that a SUCCESS from the
// trigger routes to step 0.
func (d *Definition) IndexOf(source string) (int, error) {
	if source == d.TriggerSource {
		return -1, nil
	}
	i, ok := d.bySource[source]
	if !ok {
		return 0, fmt.Errorf("%w: %q (definition %s)", ErrUnknownSource, source, d.Version)
	}
	return i, nil
}

// OrderSagaTopics names the topics of the order saga. One execute topic and
// one compensate topic per step, plus the ending notification, the
// orchestrated start topic and the orchestrator reply topic.
const (
	TopicProductValidationStart = "product-validation-start"
	TopicProductValidationFail  = "product-validation-fail"
	TopicPaymentStart           = "payment-start"
	TopicPaymentFail            = "payment-fail"
	TopicInventoryStart         = "inventory-start"
	TopicInventoryFail          = "inventory-fail"
	TopicNotifyEnding           = "notify-ending"
	TopicStartSaga              = "start-saga"
	TopicOrchestratorReplies    = "orchestrator-replies"
)

// Source identifiers stamped on the envelope by each service.
const (
	SourceOrder             = "ORDER_SERVICE"
	SourceProductValidation = "PRODUCT_VALIDATION_SERVICE"
	SourcePayment           = "PAYMENT_SERVICE"
	SourceInventory         = "INVENTORY_SERVICE"
	SourceOrchestrator      = "ORCHESTRATOR"
)

// NewOrderSagaDefinition builds the production order saga:
// product validation -> payment -> inventory.
func NewOrderSagaDefinition() *Definition {
	def, err := NewDefinition("order-saga/v1", SourceOrder, TopicNotifyEnding, []StepDef{
		{
			Name:            "product-validation",
			Source:          SourceProductValidation,
			ExecuteTopic:    TopicProductValidationStart,
			CompensateTopic: TopicProductValidationFail,
		},
		{
			Name:            "payment",
			Source:          SourcePayment,
			ExecuteTopic:    TopicPaymentStart,
			CompensateTopic: TopicPaymentFail,
		},
		{
			Name:            "inventory",
			Source:          SourceInventory,
			ExecuteTopic:    TopicInventoryStart,
			CompensateTopic: TopicInventoryFail,
		},
	})
	if err != nil {
		// The sequence above is static; a construction error is a programming bug.
		panic(err)
	}
	return def
}
