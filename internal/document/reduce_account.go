package document

import "github.com/MarcoPoloResearchLab/crmcore/internal/events"

func createAccount(doc Document, event events.Event, id string, payload events.AccountCreated) (Document, error) {
	if err := ensureCreatable(doc, events.KeyOf(events.FamilyAccount, id)); err != nil {
		return doc, err
	}
	if err := requireText("organizationId", payload.OrganizationID); err != nil {
		return doc, err
	}
	if err := requireExisting(doc, events.KeyOf(events.FamilyOrganization, payload.OrganizationID)); err != nil {
		return doc, err
	}
	if err := requireText("name", payload.Name); err != nil {
		return doc, err
	}
	status := payload.Status
	if status == "" {
		status = events.AccountStatusOpen
	}
	if err := events.ValidateEnum("status", status); err != nil {
		return doc, err
	}

	doc.Accounts = put(doc.Accounts, id, Account{
		ID:             id,
		OrganizationID: payload.OrganizationID,
		Name:           normalizeText(payload.Name),
		Status:         status,
		Owner:          payload.Owner,
		CreatedAt:      event.Timestamp,
		UpdatedAt:      event.Timestamp,
	})
	return doc, nil
}

func updateAccount(doc Document, event events.Event, id string, payload events.AccountUpdated) (Document, error) {
	account, found := doc.Accounts[id]
	if !found {
		return doc, notFound(doc, events.KeyOf(events.FamilyAccount, id))
	}
	if payload.Name != nil {
		if err := requireText("name", *payload.Name); err != nil {
			return doc, err
		}
		account.Name = normalizeText(*payload.Name)
	}
	if payload.Status != nil {
		if err := events.ValidateEnum("status", *payload.Status); err != nil {
			return doc, err
		}
		account.Status = *payload.Status
	}
	if payload.Owner != nil {
		account.Owner = *payload.Owner
	}
	account.UpdatedAt = event.Timestamp

	doc.Accounts = put(doc.Accounts, id, account)
	return doc, nil
}

func deleteAccount(doc Document, event events.Event, id string) (Document, error) {
	key := events.KeyOf(events.FamilyAccount, id)
	if _, found := doc.Accounts[id]; !found {
		return doc, notFound(doc, key)
	}
	doc.Accounts = drop(doc.Accounts, id)
	doc = doc.withoutLinksTo(key, event)
	return doc.withTombstone(key, event), nil
}
