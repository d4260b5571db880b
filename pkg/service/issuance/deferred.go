package issuance

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/pkg/service/credential"
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
)

// CompleteDeferred polls the issuer for a deferred credential once. A ready credential replaces the stored
// placeholder and its transaction is removed, a pending one keeps the transaction with the issuer's new id.
func (s Service) CompleteDeferred(ctx context.Context, request CompleteDeferredRequest) (*DeferredResult, error) {
	logrus.Debugf("completing deferred credential: %+v", request)

	stored, err := s.entities.GetCredentialByIDAndUserID(ctx, request.CredentialID, request.UserID)
	if err != nil {
		return nil, err
	}
	tx, err := s.entities.GetTransactionLinkedToCredential(ctx, request.CredentialID)
	if err != nil {
		return nil, err
	}
	data := tx.Transaction.Value
	if data.TransactionID == "" || data.DeferredEndpoint == "" {
		return nil, framework.NewErrorf(framework.Deserialization, "transaction %s of credential %s is malformed", tx.ID, request.CredentialID)
	}

	response, err := s.client.RequestDeferredCredential(ctx, data.DeferredEndpoint, data.AccessToken, data.TransactionID)
	if err != nil {
		return nil, err
	}

	if response.Deferred() {
		data.TransactionID = response.PendingTransactionID()
		tx.Transaction = entity.NewProperty(data)
		if err = s.entities.UpdateEntity(ctx, tx); err != nil {
			return nil, errors.Wrapf(err, "updating transaction %s", tx.ID)
		}
		return &DeferredResult{State: DeferredPending, Credential: *stored}, nil
	}

	issued, err := decodeCredential(response.Format, response.Credential, credential.HolderOf(*stored), stored.CredentialTypes.Value)
	if err != nil {
		return nil, err
	}
	completed := issued.toEntity(stored.ID, request.UserID)
	if err = s.entities.UpdateEntity(ctx, completed); err != nil {
		return nil, errors.Wrapf(err, "storing completed credential %s", stored.ID)
	}
	if err = s.entities.DeleteTransactionByTransactionID(ctx, tx.ID); err != nil {
		return nil, errors.Wrapf(err, "deleting transaction %s", tx.ID)
	}
	logrus.Infof("deferred credential %s is ready", stored.ID)
	return &DeferredResult{State: DeferredReady, Credential: completed}, nil
}
