package notification

import (
	"fmt"
	"time"

	"github.com/citaplan/citaplan/svc/billing"
	"github.com/citaplan/citaplan/svc/dunning"
)

type message struct {
	subject string
	body    string
}

func formatMoney(m billing.Money) string {
	return fmt.Sprintf("%.2f %s", float64(m.Amount)/100, m.Currency)
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func paymentSuccessEmail(product string, sub *billing.Subscription) message {
	body := fmt.Sprintf(`<h2>Pago recibido</h2>
<p>Hemos recibido tu pago de <strong>%s</strong>. Tu suscripción a %s sigue activa.</p>`,
		formatMoney(sub.CurrentPrice), product)
	if sub.NextChargeAt != nil {
		body += fmt.Sprintf(`
<p>Próximo cobro: <strong>%s</strong>.</p>`, formatDate(*sub.NextChargeAt))
	}
	return message{
		subject: fmt.Sprintf("%s: pago recibido", product),
		body:    body,
	}
}

func cancellationEmail(product string, sub *billing.Subscription) message {
	body := fmt.Sprintf(`<h2>Suscripción cancelada</h2>
<p>Tu suscripción a %s ha sido cancelada.</p>`, product)
	if sub.CancelReason != "" {
		body += fmt.Sprintf(`
<p>Motivo: %s.</p>`, sub.CancelReason)
	}
	body += `
<p>Puedes volver a suscribirte cuando quieras desde tu panel de cuenta.</p>`
	return message{
		subject: fmt.Sprintf("%s: suscripción cancelada", product),
		body:    body,
	}
}

func trialEndingEmail(product string, sub *billing.Subscription, now time.Time) message {
	subject := fmt.Sprintf("%s: tu periodo de prueba termina pronto", product)
	body := fmt.Sprintf(`<h2>Tu prueba está por terminar</h2>
<p>Tu periodo de prueba de %s está llegando a su fin.</p>`, product)
	if sub.TrialEndsAt != nil {
		days := int(sub.TrialEndsAt.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		subject = fmt.Sprintf("%s: tu prueba termina en %d días", product, days)
		body = fmt.Sprintf(`<h2>Tu prueba está por terminar</h2>
<p>Tu periodo de prueba de %s termina el <strong>%s</strong>.</p>`,
			product, formatDate(*sub.TrialEndsAt))
	}
	body += `
<p>Añade un método de pago para no perder acceso a tu cuenta.</p>`
	return message{subject: subject, body: body}
}

func upcomingChargeEmail(product string, sub *billing.Subscription) message {
	body := fmt.Sprintf(`<h2>Próximo cobro</h2>
<p>Tu suscripción a %s se renovará pronto por <strong>%s</strong>.</p>`,
		product, formatMoney(sub.CurrentPrice))
	if sub.NextChargeAt != nil {
		body += fmt.Sprintf(`
<p>Fecha de cobro: <strong>%s</strong>.</p>`, formatDate(*sub.NextChargeAt))
	}
	body += `
<p>Si necesitas actualizar tu método de pago, hazlo antes de esa fecha.</p>`
	return message{
		subject: fmt.Sprintf("%s: próximo cobro de tu suscripción", product),
		body:    body,
	}
}

// dunningEmail maps each recovery-sequence notice to its escalating copy.
func dunningEmail(product string, sub *billing.Subscription, notice dunning.Notice) message {
	price := formatMoney(sub.CurrentPrice)

	switch notice {
	case dunning.NoticeReminder:
		return message{
			subject: fmt.Sprintf("%s: recordatorio de pago pendiente", product),
			body: fmt.Sprintf(`<h2>Pago pendiente</h2>
<p>Seguimos sin poder cobrar <strong>%s</strong> por tu suscripción a %s.</p>
<p>Revisa tu método de pago para evitar interrupciones en el servicio.</p>`, price, product),
		}
	case dunning.NoticeGracePeriod:
		body := fmt.Sprintf(`<h2>Tu cuenta entra en periodo de gracia</h2>
<p>No hemos podido cobrar tu suscripción a %s tras varios intentos.</p>`, product)
		if sub.GraceDeadline != nil {
			body += fmt.Sprintf(`
<p>Tienes hasta el <strong>%s</strong> para actualizar tu método de pago antes de que la cuenta sea suspendida.</p>`,
				formatDate(*sub.GraceDeadline))
		}
		return message{
			subject: fmt.Sprintf("%s: acción requerida, periodo de gracia", product),
			body:    body,
		}
	case dunning.NoticeUrgent:
		body := fmt.Sprintf(`<h2>Última oportunidad</h2>
<p>Tu suscripción a %s será suspendida muy pronto por falta de pago.</p>`, product)
		if sub.GraceDeadline != nil {
			body += fmt.Sprintf(`
<p>Fecha límite: <strong>%s</strong>.</p>`, formatDate(*sub.GraceDeadline))
		}
		return message{
			subject: fmt.Sprintf("%s: urgente, tu cuenta será suspendida", product),
			body:    body,
		}
	case dunning.NoticeSuspension:
		return message{
			subject: fmt.Sprintf("%s: cuenta suspendida", product),
			body: fmt.Sprintf(`<h2>Cuenta suspendida</h2>
<p>Tu cuenta de %s ha sido suspendida por falta de pago.</p>
<p>Para reactivarla, regulariza el pago pendiente de <strong>%s</strong> desde tu panel de cuenta.</p>`,
				product, price),
		}
	default: // NoticePaymentFailed
		return message{
			subject: fmt.Sprintf("%s: no pudimos procesar tu pago", product),
			body: fmt.Sprintf(`<h2>Pago rechazado</h2>
<p>No pudimos procesar el cobro de <strong>%s</strong> por tu suscripción a %s.</p>
<p>Lo intentaremos de nuevo en los próximos días. Verifica que tu método de pago esté vigente.</p>`,
				price, product),
		}
	}
}
