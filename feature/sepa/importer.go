package sepa

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"civisync/core/logger"
	"civisync/core/source"
	"civisync/core/sync"
	"civisync/core/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Params configures the SEPA mandate import. All three identifiers are
// required; a missing one aborts the run before any record is touched.
type Params struct {
	// CreditorID is the SEPA creditor every imported mandate belongs to.
	CreditorID int64
	// PaymentInstrumentID is applied to the recurring and first contribution.
	PaymentInstrumentID int64
	// PaymentProcessorID is applied to the recurring and first contribution.
	PaymentProcessorID int64
}

func (p Params) validate() error {
	if p.CreditorID == 0 {
		return errors.New("no sepa_creditor_id specified for import")
	}
	if p.PaymentInstrumentID == 0 {
		return errors.New("no payment_instrument_id specified for import")
	}
	if p.PaymentProcessorID == 0 {
		return errors.New("no payment_processor_id specified for import")
	}
	return nil
}

// Import consumes the record source and, per record, creates or updates the
// recurring contribution, the (first) contribution and the mandate, in that
// order. The mandate's enabled flag is applied as a separate, final,
// idempotent step. A record whose contact cannot be resolved is skipped with
// a warning; the batch continues.
func Import(ctx context.Context, eng *sync.Engine, src source.Source, params Params, log *zap.Logger) error {
	if err := params.validate(); err != nil {
		log.Error("SEPA mandate import misconfigured", zap.Error(err))
		return err
	}

	log = logger.WithRun(log, uuid.NewString())
	log.Info("Starting SEPA mandate import")

	imported, skipped := 0, 0
	for {
		record, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record source failed: %w", err)
		}

		if err := importRecord(ctx, eng, record, params, log); err != nil {
			skipped++
			log.Warn("Record skipped",
				zap.String("reference", record["reference"]),
				zap.Error(err))
			continue
		}
		imported++
	}

	log.Info("SEPA mandate import finished",
		zap.Int("imported", imported),
		zap.Int("skipped", skipped))
	return nil
}

func importRecord(ctx context.Context, eng *sync.Engine, record source.Record, params Params, log *zap.Logger) error {
	contactID, err := eng.ContactID(ctx, record.Attrs(), nil, true)
	if err != nil {
		return fmt.Errorf("contact resolution failed: %w", err)
	}
	if contactID == 0 {
		return errors.New("contact not found")
	}

	today := time.Now().Format("2006-01-02")

	mandateAttrs := record.Subset(mandateFields)
	mandateAttrs["entity_table"] = "civicrm_contribution_recur"
	mandateAttrs["creditor_id"] = params.CreditorID
	mandateAttrs["contact_id"] = contactID
	if utils.ToString(mandateAttrs["date"]) == "" {
		mandateAttrs["date"] = today
	}

	recurringAttrs := record.Subset(recurringFields)
	recurringAttrs["contact_id"] = contactID
	recurringAttrs["payment_instrument_id"] = params.PaymentInstrumentID
	recurringAttrs["payment_processor_id"] = params.PaymentProcessorID
	if utils.ToString(recurringAttrs["is_email_receipt"]) == "" {
		recurringAttrs["is_email_receipt"] = "0"
	}
	if utils.ToString(recurringAttrs["is_test"]) == "" {
		recurringAttrs["is_test"] = "0"
	}
	if utils.ToString(recurringAttrs["modified_date"]) == "" {
		recurringAttrs["modified_date"] = today
	}

	contributionAttrs := record.Subset(contributionFields)
	contributionAttrs["contact_id"] = contactID
	contributionAttrs["total_amount"] = record["amount"]
	contributionAttrs["non_deductible_amount"] = record["amount"]
	contributionAttrs["payment_instrument_id"] = params.PaymentInstrumentID
	contributionAttrs["payment_processor_id"] = params.PaymentProcessorID
	if startDate, ok := recurringAttrs["start_date"]; ok {
		contributionAttrs["receive_date"] = startDate
	}

	// The mandate's reference is the natural key of the whole transaction.
	mandate, err := eng.GetEntity(ctx, "SepaMandate", mandateAttrs, []string{"reference"})
	if err != nil {
		return fmt.Errorf("mandate lookup failed: %w", err)
	}

	if mandate == nil {
		log.Info("Creating new mandate", zap.String("reference", record["reference"]))
		// Transaction identifiers default to a content hash so that
		// re-importing the same source data regenerates the same ids.
		hash := contentHash(recurringAttrs)
		if utils.ToString(recurringAttrs["trxn_id"]) == "" {
			recurringAttrs["trxn_id"] = hash
		}
		if utils.ToString(recurringAttrs["invoice_id"]) == "" {
			recurringAttrs["invoice_id"] = hash
		}
	} else {
		log.Info("Updating existing mandate",
			zap.String("reference", record["reference"]),
			zap.Int64("mandate_id", mandate.ID()))
		recurringAttrs["id"] = mandate.Get("entity_id")
	}

	// The recurring contribution must exist before anything references it.
	recurring, err := eng.CreateOrUpdate(ctx, "ContributionRecur", recurringAttrs,
		sync.PolicyUpdate, []string{"contact_id", "id", "invoice_id"})
	if err != nil {
		return fmt.Errorf("recurring contribution upsert failed: %w", err)
	}
	mandateAttrs["entity_id"] = recurring.ID()

	contributionAttrs["contribution_recur_id"] = recurring.ID()
	contributionAttrs["invoice_id"] = recurring.Get("invoice_id")
	contribution, err := eng.CreateOrUpdate(ctx, "Contribution", contributionAttrs,
		sync.PolicyUpdate, []string{"invoice_id", "contribution_recur_id"})
	if err != nil {
		return fmt.Errorf("first contribution upsert failed: %w", err)
	}
	log.Debug("Linked first contribution",
		zap.Int64("contribution_id", contribution.ID()),
		zap.Int64("recurring_id", recurring.ID()))

	if mandate == nil {
		// New mandates start disabled; activation is the separate final step.
		mandateAttrs["is_enabled"] = "0"
		mandate, err = eng.CreateEntity(ctx, "SepaMandate", mandateAttrs)
		if err != nil {
			return fmt.Errorf("mandate creation failed: %w", err)
		}
	} else {
		if _, err := mandate.Reconcile(sync.PolicyUpdate, mandateAttrs); err != nil {
			return err
		}
		if err := eng.Store(ctx, mandate); err != nil {
			return fmt.Errorf("mandate update failed: %w", err)
		}
	}

	// Enable/disable always runs last; the delta rule makes it a no-op when
	// the flag already matches.
	enabled := "1"
	if value, ok := record["is_enabled"]; ok && !utils.ToBool(value) {
		enabled = "0"
	}
	if enabled != mandate.GetString("is_enabled") {
		log.Info("Switching mandate enabled state",
			zap.String("reference", record["reference"]),
			zap.String("is_enabled", enabled))
	}
	mandate.Set("is_enabled", enabled)
	if err := eng.Store(ctx, mandate); err != nil {
		return fmt.Errorf("mandate enable/disable failed: %w", err)
	}
	return nil
}

// contentHash derives a deterministic transaction identifier from the
// contribution's attribute content.
func contentHash(attrs map[string]any) string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h := sha1.New()
	for _, key := range keys {
		fmt.Fprintf(h, "%s=%s;", key, utils.ToString(attrs[key]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
