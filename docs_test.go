package entitle_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/plan"
	"github.com/xraph/entitle/store/file"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and behave as described.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (a JSON file in the app's data directory)
		s := file.New(t.TempDir())

		e := entitle.New(s,
			entitle.WithLogger(slog.Default()),
			entitle.WithClock(meter.InLocation(time.Local)),
		)

		ctx := context.Background()
		if err := e.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer e.Stop()

		// Locked features show the paywall on the free tier
		v := e.Evaluate(ctx, plan.FeatureVetFinder)
		if v.Allowed {
			t.Fatal("vet finder should be locked on the free tier")
		}
		log.Printf("vet finder denied: %s\n", v.Reason)

		// Metered chat: check and record in one step
		v, err := e.Consume(ctx, plan.FeatureAIChat, meter.KindMessage)
		if err != nil {
			t.Fatal(err)
		}
		if !v.Allowed {
			t.Fatal("first chat message should be allowed")
		}

		// Or check first and record after the work succeeds
		if e.Evaluate(ctx, plan.FeatureAIChat).Allowed {
			e.RecordMessage(ctx)
		}

		if got := e.PeekLedger(ctx).MessageCount; got != 2 {
			t.Fatalf("expected 2 messages, got %d", got)
		}
	})

	t.Run("UpgradeExample", func(t *testing.T) {
		ctx := context.Background()
		e := entitle.New(file.New(t.TempDir()))

		e.Upgrade(ctx)
		if !e.Evaluate(ctx, plan.FeatureHealthReportExport).Allowed {
			t.Fatal("premium should unlock every feature")
		}

		e.Downgrade(ctx)
		if e.IsPremium() {
			t.Fatal("downgrade should return to the free tier")
		}
	})
}
