package rating

import (
	"errors"
	"fmt"
	"net/http"

	"tabcoin-ledger-go/internal/store"
)

// Outcomes a rating request can be rejected with. Every one of them leaves
// the ledger untouched.
var (
	ErrMissingField              = errors.New("missing required field")
	ErrInvalidField              = errors.New("invalid field")
	ErrInsufficientFunds         = errors.New("insufficient tabcoins")
	ErrTooManyActions            = errors.New("too many rating actions on the same content")
	ErrTooManyConcurrentRequests = errors.New("too many concurrent requests")
	ErrAlreadyPublished          = errors.New("content already received its base credit")
)

// FieldError names the request field a validation failure is about.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Kind is the response-shaping category of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindMissingField
	KindInvalidField
	KindInsufficientFunds
	KindTooManyActions
	KindTooManyConcurrentRequests
	KindAlreadyPublished
)

func (k Kind) String() string {
	switch k {
	case KindMissingField:
		return "missing_field"
	case KindInvalidField:
		return "invalid_field"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindTooManyActions:
		return "too_many_actions"
	case KindTooManyConcurrentRequests:
		return "too_many_concurrent_requests"
	case KindAlreadyPublished:
		return "already_published"
	default:
		return "internal"
	}
}

// Retryable is true only for contention. Policy rejections are final.
func (k Kind) Retryable() bool {
	return k == KindTooManyConcurrentRequests
}

// Classify maps err to its Kind. A bare store conflict that escaped the
// retry loop is reported as contention too.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrMissingField):
		return KindMissingField
	case errors.Is(err, ErrInvalidField):
		return KindInvalidField
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrTooManyActions):
		return KindTooManyActions
	case errors.Is(err, ErrTooManyConcurrentRequests), errors.Is(err, store.ErrSerializationConflict):
		return KindTooManyConcurrentRequests
	case errors.Is(err, ErrAlreadyPublished), errors.Is(err, store.ErrDuplicateEvent):
		return KindAlreadyPublished
	}
	return KindInternal
}

// Problem is what the boundary needs to render a rejection.
type Problem struct {
	Kind         Kind   `json:"-"`
	Name         string `json:"name"`
	Message      string `json:"message"`
	Action       string `json:"action"`
	StatusCode   int    `json:"status_code"`
	LocationCode string `json:"error_location_code,omitempty"`
	Key          string `json:"key,omitempty"`
}

// Describe builds the Problem for err. Messages are the user-facing
// Portuguese texts TabNews answers with.
func Describe(err error) Problem {
	kind := Classify(err)
	p := Problem{Kind: kind}

	switch kind {
	case KindMissingField, KindInvalidField:
		p.Name = "ValidationError"
		p.StatusCode = http.StatusBadRequest
		p.Action = "Ajuste os dados enviados e tente novamente."
		p.LocationCode = "MODEL:VALIDATOR:FINAL_SCHEMA"

		var fe *FieldError
		if errors.As(err, &fe) {
			p.Key = fe.Field
			if kind == KindMissingField {
				p.Message = fmt.Sprintf("%q é um campo obrigatório.", fe.Field)
			} else {
				p.Message = fmt.Sprintf("%q possui um valor inválido.", fe.Field)
			}
		} else {
			p.Message = "Os dados enviados são inválidos."
		}
	case KindInsufficientFunds:
		p.Name = "UnprocessableEntityError"
		p.StatusCode = http.StatusUnprocessableEntity
		p.Message = "Não foi possível adicionar TabCoins nesta publicação."
		p.Action = "Você precisa de pelo menos 2 TabCoins para realizar esta ação."
		p.LocationCode = "MODEL:BALANCE:RATE_CONTENT:NOT_ENOUGH"
	case KindTooManyActions:
		p.Name = "ValidationError"
		p.StatusCode = http.StatusBadRequest
		p.Message = "Você está tentando qualificar muitas vezes o mesmo conteúdo."
		p.Action = "Esta operação não poderá ser repetida dentro de 72 horas."
	case KindTooManyConcurrentRequests:
		p.Name = "UnprocessableEntityError"
		p.StatusCode = http.StatusUnprocessableEntity
		p.Message = "Muitos votos ao mesmo tempo."
		p.Action = "Tente realizar esta operação mais tarde."
		p.LocationCode = "CONTROLLER:CONTENT:TABCOINS:SERIALIZATION_FAILURE"
	case KindAlreadyPublished:
		p.Name = "ValidationError"
		p.StatusCode = http.StatusBadRequest
		p.Message = "Este conteúdo já recebeu os TabCoins de publicação."
		p.Action = "Nenhuma ação é necessária."
		p.Key = "content_id"
	default:
		p.Name = "InternalServerError"
		p.StatusCode = http.StatusInternalServerError
		p.Message = "Um erro interno não esperado aconteceu."
		p.Action = "Informe ao suporte o valor encontrado no campo \"error_id\"."
	}
	return p
}
