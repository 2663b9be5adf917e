package banking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"civisync/core/civi"
	"civisync/core/logger"
	"civisync/core/source"
	"civisync/core/sync"
	"civisync/core/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mode selects how preexisting remote account references are treated.
type Mode string

const (
	// ModeUpdate only adds or replaces the references given in the record.
	ModeUpdate Mode = "update"
	// ModeOverwrite additionally removes remote references of types the
	// record does not carry.
	ModeOverwrite Mode = "overwrite"
)

// referenceTypeGroup is the option group holding bank account reference types.
const referenceTypeGroup = "civicrm_banking.reference_types"

// accountFields are the source fields accepted on the account itself.
// Reference fields (IBAN, NBAN_??) are handled separately.
var accountFields = []string{
	"id", "contact_id", "created_date", "modified_date", "description",
	"data_raw", "data_parsed",
}

// Params configures the bank account import.
type Params struct {
	// Mode defaults to ModeUpdate when empty.
	Mode Mode
}

func (p Params) mode() Mode {
	if p.Mode == "" {
		return ModeUpdate
	}
	return p.Mode
}

func (p Params) validate() error {
	switch p.mode() {
	case ModeUpdate, ModeOverwrite:
		return nil
	}
	return fmt.Errorf("bad reference mode %q: must be update or overwrite", p.Mode)
}

// Import consumes the record source and creates or updates one bank account
// per record, locating it through its IBAN or national account references.
// Records without any reference field are skipped with a warning.
func Import(ctx context.Context, eng *sync.Engine, src source.Source, params Params, log *zap.Logger) error {
	if err := params.validate(); err != nil {
		log.Error("Bank account import misconfigured", zap.Error(err))
		return err
	}

	log = logger.WithRun(log, uuid.NewString())
	log.Info("Starting bank account import", zap.String("mode", string(params.mode())))

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
			log.Warn("Record skipped", zap.Error(err))
			continue
		}
		imported++
	}

	log.Info("Bank account import finished",
		zap.Int("imported", imported),
		zap.Int("skipped", skipped))
	return nil
}

func importRecord(ctx context.Context, eng *sync.Engine, record source.Record, params Params, log *zap.Logger) error {
	accountAttrs := record.Subset(accountFields)

	if _, ok := accountAttrs["id"]; !ok {
		if _, ok := accountAttrs["contact_id"]; !ok {
			contactID, err := eng.ContactID(ctx, record.Attrs(), []string{"external_identifier"}, true)
			if err != nil {
				return fmt.Errorf("contact resolution failed: %w", err)
			}
			if contactID == 0 {
				return errors.New("contact for bank account not found")
			}
			accountAttrs["contact_id"] = contactID
		}
	}

	refs := collectReferences(record)
	if len(refs) == 0 {
		return errors.New("record has no account references, account will not be created")
	}
	refTypes := referenceTypes(refs)

	groupID, err := eng.OptionGroupID(ctx, referenceTypeGroup)
	if err != nil {
		return fmt.Errorf("reference type group lookup failed: %w", err)
	}

	// The first reference locates the account.
	locatorType := refTypes[0]
	locatorTypeID, err := eng.OptionValueID(ctx, groupID, locatorType)
	if err != nil {
		return fmt.Errorf("reference type %q lookup failed: %w", locatorType, err)
	}

	reference, err := eng.GetEntity(ctx, "BankingAccountReference", map[string]any{
		"reference":         refs[locatorType],
		"reference_type_id": locatorTypeID,
	}, []string{"reference", "reference_type_id"})
	if err != nil {
		return fmt.Errorf("account reference lookup failed: %w", err)
	}

	var account *sync.Entity
	if reference == nil {
		account, err = createAccount(ctx, eng, accountAttrs)
		if err != nil {
			return err
		}
		log.Info("Created new bank account", zap.Int64("account_id", account.ID()))
	} else {
		account, err = updateAccount(ctx, eng, reference, accountAttrs, log)
		if err != nil {
			return err
		}
		// The locator reference is known to exist on this account.
		refTypes = refTypes[1:]
	}

	presentTypeIDs := map[int64]bool{locatorTypeID: true}
	for _, refType := range refTypes {
		typeID, err := eng.OptionValueID(ctx, groupID, refType)
		if err != nil {
			return fmt.Errorf("reference type %q lookup failed: %w", refType, err)
		}
		if typeID == 0 {
			log.Warn("Reference type not found, reference ignored", zap.String("type", refType))
			continue
		}
		presentTypeIDs[typeID] = true

		if _, err := eng.CreateOrUpdate(ctx, "BankingAccountReference", map[string]any{
			"reference_type_id": typeID,
			"ba_id":             account.ID(),
			"reference":         refs[refType],
		}, sync.PolicyUpdate, []string{"ba_id", "reference_type_id"}); err != nil {
			return fmt.Errorf("reference %q upsert failed: %w", refType, err)
		}
		log.Info("Verified or added account reference",
			zap.String("type", refType), zap.Int64("account_id", account.ID()))
	}

	if params.mode() == ModeOverwrite {
		if err := removeStaleReferences(ctx, eng, account.ID(), presentTypeIDs, log); err != nil {
			return err
		}
	}
	return nil
}

// createAccount creates the account and corrects the remote-stamped
// timestamps back to the source values.
func createAccount(ctx context.Context, eng *sync.Engine, attrs map[string]any) (*sync.Entity, error) {
	account, err := eng.CreateOrUpdate(ctx, "BankingAccount", attrs,
		sync.PolicyUpdate, []string{"id", "contact_id"})
	if err != nil {
		return nil, fmt.Errorf("account creation failed: %w", err)
	}

	// The remote system stamps created_date/modified_date with "now" on
	// creation; restore the source values in the compact remote layout.
	for _, key := range []string{"created_date", "modified_date"} {
		if value, ok := attrs[key]; ok {
			account.Set(key, compactTimestamp(utils.ToString(value)))
		}
	}
	if err := eng.Store(ctx, account); err != nil {
		return nil, fmt.Errorf("account timestamp correction failed: %w", err)
	}
	return account, nil
}

// updateAccount merges the record into the account the locator reference
// points at. A non-empty delta also stamps the modification date.
func updateAccount(ctx context.Context, eng *sync.Engine, reference *sync.Entity, attrs map[string]any, log *zap.Logger) (*sync.Entity, error) {
	account, err := eng.GetEntity(ctx, "BankingAccount",
		map[string]any{"id": reference.Get("ba_id")}, []string{"id", "contact_id"})
	if err != nil {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account reference points at missing account %s",
			reference.GetString("ba_id"))
	}

	changes, err := account.Reconcile(sync.PolicyUpdate, attrs)
	if err != nil {
		return nil, err
	}
	if changes == 0 {
		log.Info("No need to update bank account", zap.Int64("account_id", account.ID()))
		return account, nil
	}

	if value, ok := attrs["modified_date"]; ok {
		account.Set("modified_date", utils.ToString(value))
	} else {
		account.Set("modified_date", time.Now().Format("20060102150405"))
	}
	if err := eng.Store(ctx, account); err != nil {
		return nil, fmt.Errorf("account update failed: %w", err)
	}
	log.Info("Updated bank account", zap.Int64("account_id", account.ID()))
	return account, nil
}

// removeStaleReferences deletes remote references of types the record did
// not carry.
func removeStaleReferences(ctx context.Context, eng *sync.Engine, accountID int64, presentTypeIDs map[int64]bool, log *zap.Logger) error {
	existing, err := eng.ListEntities(ctx, "BankingAccountReference", civi.Params{"ba_id": accountID})
	if err != nil {
		return fmt.Errorf("reference listing failed: %w", err)
	}
	for _, ref := range existing {
		typeID := ref.GetInt("reference_type_id")
		if presentTypeIDs[typeID] {
			continue
		}
		if err := eng.DeleteEntity(ctx, "BankingAccountReference", ref.ID()); err != nil {
			return fmt.Errorf("stale reference removal failed: %w", err)
		}
		log.Info("Removed stale account reference",
			zap.Int64("reference_id", ref.ID()), zap.Int64("account_id", accountID))
	}
	return nil
}

// collectReferences extracts the IBAN and national account reference fields.
func collectReferences(record source.Record) map[string]string {
	refs := map[string]string{}
	for key, value := range record {
		if value == "" {
			continue
		}
		if key == "IBAN" || strings.HasPrefix(key, "NBAN") {
			refs[key] = value
		}
	}
	return refs
}

// referenceTypes orders the reference types deterministically: IBAN first,
// the rest sorted. The first type locates the account.
func referenceTypes(refs map[string]string) []string {
	types := make([]string, 0, len(refs))
	for key := range refs {
		if key != "IBAN" {
			types = append(types, key)
		}
	}
	sort.Strings(types)
	if _, ok := refs["IBAN"]; ok {
		types = append([]string{"IBAN"}, types...)
	}
	return types
}

// compactTimestamp converts a date-only source value into the compact
// timestamp layout the remote store uses. Values already carrying a time
// component pass through unchanged.
func compactTimestamp(value string) string {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.Format("20060102150405")
	}
	return value
}
