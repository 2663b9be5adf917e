package sepa

// Accepted source fields per target entity. The catalogs are data, not
// logic: a deployment extends them without touching the pipeline.
var (
	mandateFields = []string{
		"invoice_id", "reference", "date", "creditor_id", "iban", "bic",
		"type", "creation_date", "validation_date",
	}

	recurringFields = []string{
		"is_email_receipt", "payment_instrument_id", "financial_type_id",
		"payment_processor_id", "auto_renew", "failure_count", "cycle_day",
		"is_test", "contribution_status_id", "trxn_id", "contact_id",
		"amount", "currency", "frequency_unit", "frequency_interval",
		"installments", "start_date", "create_date", "modified_date",
	}

	contributionFields = []string{
		"contact_id", "financial_type_id", "contribution_page_id",
		"payment_instrument_id", "total_amount", "non_deductible_amount",
		"fee_amount", "net_amount", "trxn_id", "invoice_id", "currency",
		"cancel_date", "cancel_reason", "receipt_date", "thankyou_date",
		"source", "amount_level", "honor_contact_id", "is_test",
		"is_pay_later", "honor_type_id", "address_id", "check_number",
		"campaign_id",
	}
)
