package telemetry

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelController = "controller"
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
	ProfilingLabelTenantID   = "tenant_id"
	ProfilingLabelOperation  = "operation"
)

// Settlement operation names used as the operation label.
const (
	OperationAllocateManual      = "allocate_manual"
	OperationAllocateAuto        = "allocate_auto"
	OperationRemoveAllocation    = "remove_allocation"
	OperationOverdueBalances     = "overdue_balances"
	OperationExportOverdue       = "export_overdue"
	OperationOverdueSweep        = "overdue_sweep"
	OperationProjectInstallments = "project_installments"
)

// MaxLabelValueLength caps label values
const MaxLabelValueLength = 128

// highCardinalityLabels are dropped from profiles. Each distinct value would
// create a new series in Pyroscope.
var highCardinalityLabels = map[string]struct{}{
	"user_id":       {},
	"request_id":    {},
	"payment_id":    {},
	"obligation_id": {},
	"allocation_id": {},
	"trace_id":      {},
	"span_id":       {},
}

// WithProfilingLabels runs fn with Pyroscope labels attached to the
// goroutine. Empty and high-cardinality labels are dropped; long values are
// truncated. The map is not retained.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// sanitizeLabels returns key/value pairs sorted by key
func sanitizeLabels(labels map[string]string) []string {
	pairs := make([]string, 0, len(labels)*2)
	for _, key := range slices.Sorted(maps.Keys(labels)) {
		value := labels[key]
		if value == "" {
			continue
		}
		if _, skip := highCardinalityLabels[key]; skip {
			continue
		}
		key = sanitizeLabelKey(key)
		if key == "" {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		pairs = append(pairs, key, value)
	}
	return pairs
}

// sanitizeLabelKey lowercases key and keeps only [a-z0-9_], mapping space and dash to underscore
func sanitizeLabelKey(key string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(key) {
		switch {
		case c == ' ' || c == '-':
			b.WriteByte('_')
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		}
	}
	return b.String()
}

// HTTPRequestLabels labels a request by handler, route, method and tenant
func HTTPRequestLabels(controller, route, method, tenantID string) map[string]string {
	return map[string]string{
		ProfilingLabelController: controller,
		ProfilingLabelRoute:      route,
		ProfilingLabelMethod:     method,
		ProfilingLabelTenantID:   tenantID,
	}
}

// OperationLabels labels a named operation plus any extra labels
func OperationLabels(operation string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	maps.Copy(labels, extra)
	labels[ProfilingLabelOperation] = operation
	return labels
}

// SettlementOperationLabels labels a settlement operation with its tenant.
func SettlementOperationLabels(operation, tenantID string) map[string]string {
	return OperationLabels(operation, map[string]string{ProfilingLabelTenantID: tenantID})
}
