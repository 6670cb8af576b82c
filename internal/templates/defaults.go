package templates

import "guestflow/internal/types"

// WhatsAppTemplateName returns the approved WhatsApp template name for a base
// template and language. English variants are registered under the Spanish
// name plus a trailing underscore, so the adjustment is purely mechanical.
func WhatsAppTemplateName(base string, lang types.Language) string {
	if lang == types.LangEnglish {
		return base + "_"
	}
	return base
}

type defaultKey struct {
	msgType types.MessageType
	lang    types.Language
}

// builtinDefaults holds the fallback template bodies shipped with the binary.
// Every (MessageType, Language) pair the pipeline can produce has an entry;
// Store.Resolve falls back here when no location or organization override
// exists.
var builtinDefaults = map[defaultKey]Template{
	{types.MessageInvitation, types.LangSpanish}: {
		Body: "Hola {{name}}! Tu reserva en {{property}} para el {{check_in_date}} está confirmada. " +
			"Completa tu pago aquí: {{payment_link}} y registra tu llegada: {{checkin_link}}",
		WhatsAppTemplateName: "invitacion_reserva",
		EmailSubject:         "Tu reserva en {{property}} — {{check_in_date}}",
	},
	{types.MessageInvitation, types.LangEnglish}: {
		Body: "Hi {{name}}! Your reservation at {{property}} for {{check_in_date}} is confirmed. " +
			"Complete your payment here: {{payment_link}} and check in online: {{checkin_link}}",
		WhatsAppTemplateName: WhatsAppTemplateName("invitacion_reserva", types.LangEnglish),
		EmailSubject:         "Your reservation at {{property}} — {{check_in_date}}",
	},
	{types.MessageAccessCode, types.LangSpanish}: {
		Body: "Hola {{name}}! Tu código de acceso para {{room}} es {{access_code}}. " +
			"Es válido durante toda tu estadía.",
		WhatsAppTemplateName: "codigo_acceso",
		EmailSubject:         "Tu código de acceso — {{property}}",
	},
	{types.MessageAccessCode, types.LangEnglish}: {
		Body: "Hi {{name}}! Your access code for {{room}} is {{access_code}}. " +
			"It is valid for your entire stay.",
		WhatsAppTemplateName: WhatsAppTemplateName("codigo_acceso", types.LangEnglish),
		EmailSubject:         "Your access code — {{property}}",
	},
	{types.MessageCheckInConfirmation, types.LangSpanish}: {
		Body:                 "{{name}}, tu registro en {{property}} quedó completo. Te esperamos el {{check_in_date}}!",
		WhatsAppTemplateName: "confirmacion_checkin",
		EmailSubject:         "Registro completo — {{property}}",
	},
	{types.MessageCheckInConfirmation, types.LangEnglish}: {
		Body:                 "{{name}}, your check-in at {{property}} is complete. See you on {{check_in_date}}!",
		WhatsAppTemplateName: WhatsAppTemplateName("confirmacion_checkin", types.LangEnglish),
		EmailSubject:         "Check-in complete — {{property}}",
	},
	{types.MessagePaymentReceipt, types.LangSpanish}: {
		Body:                 "Gracias {{name}}! Recibimos tu pago para la reserva del {{check_in_date}} en {{property}}.",
		WhatsAppTemplateName: "recibo_pago",
		EmailSubject:         "Pago recibido — {{property}}",
	},
	{types.MessagePaymentReceipt, types.LangEnglish}: {
		Body:                 "Thank you {{name}}! We received your payment for the {{check_in_date}} reservation at {{property}}.",
		WhatsAppTemplateName: WhatsAppTemplateName("recibo_pago", types.LangEnglish),
		EmailSubject:         "Payment received — {{property}}",
	},
}
