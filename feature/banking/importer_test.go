package banking

import (
	"context"
	"testing"

	"civisync/core/civi"
	"civisync/core/source"
	"civisync/core/sync"
	"civisync/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// civiFake is an in-memory stand-in for the remote store: exact-match get,
// persistent create/update, delete by id. onCreate lets a test mimic
// remote-side behavior such as timestamp stamping.
type civiFake struct {
	entities map[string][]map[string]string
	nextID   int64
	writes   int
	onCreate func(entityType string, stored map[string]string)
}

func newCiviFake() *civiFake {
	return &civiFake{
		entities: map[string][]map[string]string{},
		nextID:   100,
	}
}

func (f *civiFake) Call(_ context.Context, params civi.Params) (*civi.Result, error) {
	entityType := utils.ToString(params["entity"])
	switch utils.ToString(params["action"]) {
	case "get":
		var matches []map[string]any
		for _, stored := range f.entities[entityType] {
			if f.matches(stored, params) {
				matches = append(matches, toValues(stored))
			}
		}
		return &civi.Result{Count: len(matches), Values: matches}, nil
	case "create":
		f.writes++
		if id := utils.ToString(params["id"]); id != "" {
			for _, stored := range f.entities[entityType] {
				if stored["id"] == id {
					applyParams(stored, params)
					return &civi.Result{Count: 1, Values: []map[string]any{toValues(stored)}}, nil
				}
			}
		}
		stored := map[string]string{"id": utils.ToString(f.nextID)}
		f.nextID++
		applyParams(stored, params)
		if f.onCreate != nil {
			f.onCreate(entityType, stored)
		}
		f.entities[entityType] = append(f.entities[entityType], stored)
		return &civi.Result{Count: 1, Values: []map[string]any{toValues(stored)}}, nil
	case "delete":
		f.writes++
		id := utils.ToString(params["id"])
		kept := f.entities[entityType][:0]
		for _, stored := range f.entities[entityType] {
			if stored["id"] != id {
				kept = append(kept, stored)
			}
		}
		f.entities[entityType] = kept
		return &civi.Result{}, nil
	}
	return &civi.Result{}, nil
}

func (f *civiFake) matches(stored map[string]string, params civi.Params) bool {
	for key, value := range params {
		switch key {
		case "entity", "action", "return", "option.limit":
			continue
		}
		if stored[key] != utils.ToString(value) {
			return false
		}
	}
	return true
}

func (f *civiFake) find(entityType string, key, value string) map[string]string {
	for _, stored := range f.entities[entityType] {
		if stored[key] == value {
			return stored
		}
	}
	return nil
}

func applyParams(stored map[string]string, params civi.Params) {
	for key, value := range params {
		switch key {
		case "entity", "action":
			continue
		}
		stored[key] = utils.ToString(value)
	}
}

func toValues(stored map[string]string) map[string]any {
	values := map[string]any{}
	for key, value := range stored {
		values[key] = value
	}
	return values
}

// newTestSetup seeds a contact and the reference type option group with IBAN
// and two national reference types.
func newTestSetup(t *testing.T) (*civiFake, *sync.Engine) {
	t.Helper()
	fake := newCiviFake()
	fake.entities["Contact"] = []map[string]string{
		{"id": "17", "contact_id": "17", "external_identifier": "EXT-1001"},
	}
	fake.entities["OptionGroup"] = []map[string]string{
		{"id": "8", "name": "civicrm_banking.reference_types"},
	}
	fake.entities["OptionValue"] = []map[string]string{
		{"id": "800", "option_group_id": "8", "name": "IBAN", "value": "42"},
		{"id": "801", "option_group_id": "8", "name": "NBAN_AT", "value": "43"},
		{"id": "802", "option_group_id": "8", "name": "NBAN_DE", "value": "44"},
	}
	return fake, sync.NewEngine(fake, nil, zap.NewNop())
}

func accountRecord() source.Record {
	return source.Record{
		"external_identifier": "EXT-1001",
		"IBAN":                "DE89370400440532013000",
		"description":         "main account",
		"data_raw":            "BLZ 37040044",
		"created_date":        "2014-01-01",
		"modified_date":       "2014-01-01",
	}
}

func TestImport_RejectsUnknownMode(t *testing.T) {
	fake, eng := newTestSetup(t)

	err := Import(context.Background(), eng, source.FromRecords(accountRecord()),
		Params{Mode: "merge"}, zap.NewNop())
	require.Error(t, err)
	assert.Zero(t, fake.writes)
}

func TestImport_NoReferencesSkipsRecord(t *testing.T) {
	fake, eng := newTestSetup(t)

	record := source.Record{
		"external_identifier": "EXT-1001",
		"description":         "no references here",
	}
	err := Import(context.Background(), eng, source.FromRecords(record), Params{}, zap.NewNop())
	require.NoError(t, err, "a record without references skips, the batch continues")

	assert.Empty(t, fake.entities["BankingAccount"], "no account is created without references")
	assert.Zero(t, fake.writes)
}

func TestImport_EmptyReferenceValuesDoNotCount(t *testing.T) {
	fake, eng := newTestSetup(t)

	record := source.Record{"external_identifier": "EXT-1001", "IBAN": "", "NBAN_AT": ""}
	err := Import(context.Background(), eng, source.FromRecords(record), Params{}, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, fake.entities["BankingAccount"])
}

func TestImport_CreatesAccountWithReferences(t *testing.T) {
	fake, eng := newTestSetup(t)
	fake.onCreate = func(entityType string, stored map[string]string) {
		if entityType == "BankingAccount" {
			// The remote system stamps timestamps on creation.
			stored["created_date"] = "20250831120000"
			stored["modified_date"] = "20250831120000"
		}
	}

	record := accountRecord()
	record["NBAN_AT"] = "12345 678901"
	err := Import(context.Background(), eng, source.FromRecords(record), Params{}, zap.NewNop())
	require.NoError(t, err)

	account := fake.find("BankingAccount", "contact_id", "17")
	require.NotNil(t, account)
	assert.Equal(t, "main account", account["description"])
	assert.Equal(t, "20140101000000", account["created_date"],
		"source timestamps win over the remote creation stamp")
	assert.Equal(t, "20140101000000", account["modified_date"])

	iban := fake.find("BankingAccountReference", "reference_type_id", "42")
	require.NotNil(t, iban)
	assert.Equal(t, "DE89370400440532013000", iban["reference"])
	assert.Equal(t, account["id"], iban["ba_id"])

	nban := fake.find("BankingAccountReference", "reference_type_id", "43")
	require.NotNil(t, nban)
	assert.Equal(t, "12345 678901", nban["reference"])
}

func TestImport_UpdatesAccountFoundByReference(t *testing.T) {
	fake, eng := newTestSetup(t)
	fake.entities["BankingAccount"] = []map[string]string{
		{"id": "300", "contact_id": "17", "description": "old name",
			"created_date": "20140101000000", "modified_date": "20140101000000"},
	}
	fake.entities["BankingAccountReference"] = []map[string]string{
		{"id": "500", "ba_id": "300", "reference_type_id": "42",
			"reference": "DE89370400440532013000"},
	}

	record := accountRecord()
	record["modified_date"] = "2015-06-15"
	err := Import(context.Background(), eng, source.FromRecords(record), Params{}, zap.NewNop())
	require.NoError(t, err)

	account := fake.find("BankingAccount", "id", "300")
	assert.Equal(t, "main account", account["description"])
	assert.Equal(t, "2015-06-15", account["modified_date"],
		"a real change stamps the modification date from the record")
	assert.Len(t, fake.entities["BankingAccount"], 1, "no second account is created")
}

func TestImport_UnchangedAccountIssuesNoWrite(t *testing.T) {
	fake, eng := newTestSetup(t)
	fake.entities["BankingAccount"] = []map[string]string{
		{"id": "300", "contact_id": "17", "description": "main account",
			"data_raw": "BLZ 37040044", "created_date": "20140101000000",
			"modified_date": "20140101000000"},
	}
	fake.entities["BankingAccountReference"] = []map[string]string{
		{"id": "500", "ba_id": "300", "reference_type_id": "42",
			"reference": "DE89370400440532013000"},
	}

	err := Import(context.Background(), eng, source.FromRecords(accountRecord()), Params{}, zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, fake.writes,
		"identical data must not issue a write, date layout differences included")
}

func TestImport_OverwriteRemovesStaleReferences(t *testing.T) {
	fake, eng := newTestSetup(t)
	fake.entities["BankingAccount"] = []map[string]string{
		{"id": "300", "contact_id": "17", "description": "main account",
			"data_raw": "BLZ 37040044", "created_date": "20140101000000",
			"modified_date": "20140101000000"},
	}
	fake.entities["BankingAccountReference"] = []map[string]string{
		{"id": "500", "ba_id": "300", "reference_type_id": "42",
			"reference": "DE89370400440532013000"},
		{"id": "501", "ba_id": "300", "reference_type_id": "44",
			"reference": "37040044-532013000"},
	}

	err := Import(context.Background(), eng, source.FromRecords(accountRecord()),
		Params{Mode: ModeOverwrite}, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, fake.find("BankingAccountReference", "id", "500"),
		"the reference present in the record survives")
	assert.Nil(t, fake.find("BankingAccountReference", "id", "501"),
		"reference types absent from the record are removed in overwrite mode")
}

func TestImport_UpdateModeKeepsForeignReferences(t *testing.T) {
	fake, eng := newTestSetup(t)
	fake.entities["BankingAccount"] = []map[string]string{
		{"id": "300", "contact_id": "17", "description": "main account",
			"data_raw": "BLZ 37040044", "created_date": "20140101000000",
			"modified_date": "20140101000000"},
	}
	fake.entities["BankingAccountReference"] = []map[string]string{
		{"id": "500", "ba_id": "300", "reference_type_id": "42",
			"reference": "DE89370400440532013000"},
		{"id": "501", "ba_id": "300", "reference_type_id": "44",
			"reference": "37040044-532013000"},
	}

	err := Import(context.Background(), eng, source.FromRecords(accountRecord()), Params{}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, fake.find("BankingAccountReference", "id", "501"))
}

func TestImport_UnknownReferenceTypeIsIgnored(t *testing.T) {
	fake, eng := newTestSetup(t)

	record := accountRecord()
	record["NBAN_XX"] = "999"
	err := Import(context.Background(), eng, source.FromRecords(record), Params{}, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, fake.entities["BankingAccountReference"], 1,
		"only the resolvable reference type is written")
	assert.Equal(t, "42", fake.entities["BankingAccountReference"][0]["reference_type_id"])
}

func TestReferenceTypes_Ordering(t *testing.T) {
	types := referenceTypes(map[string]string{
		"NBAN_DE": "1", "IBAN": "2", "NBAN_AT": "3",
	})
	assert.Equal(t, []string{"IBAN", "NBAN_AT", "NBAN_DE"}, types,
		"the account locator is deterministic regardless of map order")

	types = referenceTypes(map[string]string{"NBAN_DE": "1", "NBAN_AT": "3"})
	assert.Equal(t, []string{"NBAN_AT", "NBAN_DE"}, types)
}
