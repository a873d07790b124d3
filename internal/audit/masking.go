package audit

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// MaskLevel es la política de enmascarado de PII.
type MaskLevel string

const (
	MaskNone    MaskLevel = "none"
	MaskPartial MaskLevel = "partial"
	MaskFull    MaskLevel = "full"
)

const redacted = "***"

// piiKeys son las claves de Details que se consideran PII.
var piiKeys = map[string]func(string) string{
	"email":      maskEmail,
	"username":   maskName,
	"name":       maskName,
	"ip":         maskIP,
	"user_agent": maskUserAgent,
}

// ParseMaskLevel valida un nivel de enmascarado (vacío = partial).
func ParseMaskLevel(s string) (MaskLevel, error) {
	switch MaskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "", MaskPartial:
		return MaskPartial, nil
	case MaskNone:
		return MaskNone, nil
	case MaskFull:
		return MaskFull, nil
	default:
		return "", fmt.Errorf("audit: unknown mask level %q", s)
	}
}

type maskingSink struct {
	inner Sink
	level MaskLevel
}

// NewMaskingSink envuelve inner aplicando el nivel de enmascarado a IP,
// UserAgent y a las claves PII de Details antes de delegar.
func NewMaskingSink(inner Sink, level MaskLevel) Sink {
	if level == MaskNone {
		return inner
	}
	return &maskingSink{inner: inner, level: level}
}

func (m *maskingSink) RecordEvent(ctx context.Context, ev Event) error {
	return m.inner.RecordEvent(ctx, m.Mask(ev))
}

// Mask devuelve una copia del evento con la PII enmascarada.
func (m *maskingSink) Mask(ev Event) Event {
	out := ev
	out.IP = m.apply(maskIP, ev.IP)
	out.UserAgent = m.apply(maskUserAgent, ev.UserAgent)
	if ev.Details != nil {
		out.Details = cloneDetails(ev.Details)
		for k, v := range out.Details {
			fn, ok := piiKeys[strings.ToLower(k)]
			if !ok {
				continue
			}
			if s, ok := v.(string); ok {
				out.Details[k] = m.apply(fn, s)
			}
		}
	}
	return out
}

func (m *maskingSink) apply(partial func(string) string, v string) string {
	if v == "" {
		return ""
	}
	if m.level == MaskFull {
		return redacted
	}
	return partial(v)
}

// maskEmail: "john.doe@example.com" → "j***@example.com"
func maskEmail(v string) string {
	at := strings.LastIndex(v, "@")
	if at <= 0 {
		return maskName(v)
	}
	return v[:1] + redacted + v[at:]
}

// maskName: "johndoe" → "j***"
func maskName(v string) string {
	r := []rune(v)
	return string(r[:1]) + redacted
}

// maskIP anula el último octeto en IPv4 y conserva el /48 en IPv6.
func maskIP(v string) string {
	ip := net.ParseIP(strings.TrimSpace(v))
	if ip == nil {
		return redacted
	}
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}

// maskUserAgent conserva solo el primer producto: "Mozilla/5.0 (X11...)" → "Mozilla/5.0 ***"
func maskUserAgent(v string) string {
	fields := strings.Fields(v)
	if len(fields) <= 1 {
		return v
	}
	return fields[0] + " " + redacted
}
