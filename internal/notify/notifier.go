// Package notify sends best-effort outbound notifications to the signer's
// messaging channel. Failures are logged and counted, never propagated.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"firma/internal/middleware"
	"firma/internal/observability"
)

// Notification stages reported to the messaging channel.
const (
	StageAwaitingSignature = "Aguardando Assinatura"
	StageCompleted         = "Concluído"
)

const requestTimeout = 10 * time.Second

// Notifier posts workflow notifications to an external messaging endpoint.
// A nil Notifier or empty endpoint disables delivery.
type Notifier struct {
	endpoint string
	client   *http.Client
}

// NewNotifier returns a Notifier for the given endpoint. An empty endpoint
// yields a notifier that silently drops messages.
func NewNotifier(endpoint string) *Notifier {
	return &Notifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Send delivers a stage notification asynchronously. It never blocks the
// caller beyond spawning the goroutine and never returns an error.
func (n *Notifier) Send(ctx context.Context, name, nationalID, link, stage, phone string) {
	if n == nil || n.endpoint == "" {
		return
	}

	description := fmt.Sprintf("Solicitação de assinatura recebida %s \nCPF: %s\nLink: %s", name, nationalID, link)
	if stage == StageCompleted {
		description = fmt.Sprintf("Assinatura Concluída! %s \nSeu documento já está disponível.\nDownload: %s", name, link)
	}

	params := url.Values{}
	params.Set("titulo", "📢 *AVISO*")
	params.Set("descricao", description)
	params.Set("etapa", stage)
	params.Set("numero", digitsOnly(phone))

	go n.post(ctx, params, stage)
}

func (n *Notifier) post(ctx context.Context, params url.Values, stage string) {
	// Detach from the request context so an early handler return does not
	// cancel the delivery; the client timeout still bounds it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		n.logFailure(ctx, stage, err)
		return
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logFailure(ctx, stage, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		n.logFailure(ctx, stage, fmt.Errorf("unexpected status %d", resp.StatusCode))
		return
	}
	observability.NotificationsTotal.WithLabelValues("delivered").Inc()
}

func (n *Notifier) logFailure(ctx context.Context, stage string, err error) {
	observability.NotificationsTotal.WithLabelValues("failed").Inc()
	middleware.Logger.WarnContext(ctx, "notification delivery failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
