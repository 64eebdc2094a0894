// report.go covers report finalization: reference code generation and the
// collaborator interfaces for persistence and staff notification.
package bot

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// ReportWriter persists a finalized lost-item report to the append-only
// report store. The store assigns the filed-at timestamp server-side.
type ReportWriter interface {
	WriteReport(ctx context.Context, identity string, report *LostItemReport) error
}

// Notifier is told about newly filed reports so operations staff can react.
// Implementations must not block the request for long and must swallow their
// own delivery errors.
type Notifier interface {
	ReportFiled(identity string, report *LostItemReport)
}

// ReferenceCode generates the user-facing report identifier: "REF-" plus the
// current time as an uppercased base-36 token.
func ReferenceCode(now time.Time) string {
	return "REF-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
}
