package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/orders"
)

// TemplateReplies is the in-process default reply generator: deterministic
// Spanish templates per intent and per lookup outcome. It implements both
// ReplyGenerator and GuestReplier.
type TemplateReplies struct{}

// NewTemplateReplies creates a TemplateReplies
func NewTemplateReplies() *TemplateReplies {
	return &TemplateReplies{}
}

// Generate renders the reply for messages outside the guest flow
func (r *TemplateReplies) Generate(_ context.Context, in ReplyInput) (string, error) {
	switch in.Message.Intent {
	case conversation.IntentOrders:
		// Reached by authenticated users, whose order access goes through
		// their session instead of the guest flow.
		return "Podés ver el estado de tus pedidos en la sección \"Mis pedidos\" de tu cuenta. Si me pasás el número de pedido te cuento cómo viene.", nil
	case conversation.IntentGreeting:
		return "¡Hola! Puedo ayudarte con tus pedidos y consultas sobre productos. ¿Qué necesitás?", nil
	case conversation.IntentFarewell:
		return "¡Gracias por escribirnos! Que tengas un buen día.", nil
	case conversation.IntentHelp:
		return "Puedo contarte el estado de tus pedidos o responder consultas sobre productos. Contame qué necesitás.", nil
	case conversation.IntentProducts:
		if hits, ok := in.Enrichment["products"]; ok && hits != "" {
			return fmt.Sprintf("Esto es lo que encontré: %s", hits), nil
		}
		return "Contame qué producto estás buscando y te digo si lo tenemos.", nil
	default:
		return "No estoy seguro de haber entendido. Puedo ayudarte con pedidos y productos, ¿sobre qué querés consultar?", nil
	}
}

// AskHasData asks whether the user has order number and personal data handy
func (r *TemplateReplies) AskHasData() string {
	return "Para consultar un pedido necesito verificar que sea tuyo. ¿Tenés a mano el número de pedido y algún dato personal de la compra (DNI, nombre completo o teléfono)?"
}

// AskPayload asks for the order id plus two identity factors in one message
func (r *TemplateReplies) AskPayload() string {
	return "Perfecto. Pasame en un solo mensaje el número de pedido y al menos dos de estos datos: DNI, nombre y apellido, o teléfono."
}

// AskMissing re-prompts only for what is still missing
func (r *TemplateReplies) AskMissing(missingFactors int, missingOrderID bool) string {
	var parts []string
	if missingOrderID {
		parts = append(parts, "el número de pedido")
	}
	if missingFactors == 1 {
		parts = append(parts, "un dato personal más (DNI, nombre y apellido, o teléfono)")
	} else if missingFactors > 1 {
		parts = append(parts, fmt.Sprintf("%d datos personales (DNI, nombre y apellido, o teléfono)", missingFactors))
	}
	if len(parts) == 0 {
		return r.AskPayload()
	}
	return fmt.Sprintf("Ya casi. Me falta %s para poder buscar tu pedido.", strings.Join(parts, " y "))
}

// RequiresAuth directs the user to log in
func (r *TemplateReplies) RequiresAuth() string {
	return "Sin esos datos no puedo verificar el pedido por acá. Ingresá a tu cuenta en la tienda para ver tus pedidos, o escribinos cuando tengas el número de pedido a mano."
}

// LookupReply renders a lookup outcome. Wording is deliberately distinct per
// outcome: a mismatch never reads as a system failure, a throttle never
// reads as wrong data.
func (r *TemplateReplies) LookupReply(result *orders.LookupResult) string {
	switch result.Code {
	case orders.LookupSuccess:
		return renderOrderCard(result.Order)
	case orders.LookupNotFoundOrMismatch:
		return "No encontré un pedido que coincida con esos datos. Revisá el número de pedido y que los datos sean los de la compra, y probá de nuevo."
	case orders.LookupInvalidPayload:
		return "Alguno de los datos no tiene el formato esperado. Revisá el número de pedido y el DNI o teléfono, y mandámelos de nuevo."
	case orders.LookupUnauthorized:
		return "No pude validar la consulta con la tienda. Probá de nuevo en unos minutos; si sigue pasando, ingresá a tu cuenta para ver el pedido."
	case orders.LookupThrottled:
		return "Estamos recibiendo muchas consultas en este momento. Esperá unos minutos y volvé a intentarlo, tus datos estaban bien."
	default:
		return r.BackendError()
	}
}

// RateLimited is the wording when our own limiter blocks the lookup
func (r *TemplateReplies) RateLimited() string {
	return "Hiciste varias consultas seguidas. Esperá un momento antes de volver a intentarlo."
}

// BackendError is the generic opaque failure wording
func (r *TemplateReplies) BackendError() string {
	return "Tuvimos un problema procesando tu consulta. Probá de nuevo en unos minutos."
}

func renderOrderCard(order *orders.Order) string {
	if order == nil {
		return "Encontré tu pedido, pero no pude leer el detalle. Probá de nuevo en unos minutos."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "¡Encontré tu pedido #%d!\n", order.ID)
	fmt.Fprintf(&b, "Estado: %s\n", order.State)
	fmt.Fprintf(&b, "Total: $%s", order.Total.StringFixed(2))
	if order.PaymentMethod != "" {
		fmt.Fprintf(&b, "\nPago: %s", order.PaymentMethod)
	}
	if order.ShipMethod != "" {
		fmt.Fprintf(&b, "\nEnvío: %s", order.ShipMethod)
	}
	if order.TrackingCode != "" {
		fmt.Fprintf(&b, "\nSeguimiento: %s", order.TrackingCode)
	}
	return b.String()
}
