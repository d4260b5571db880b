package issuance

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/oidc4vci/model"
)

// fetchCredentials requests the descriptors one after the other, each proof carrying the latest c_nonce of the
// issuer. A failing credential is logged and skipped, keeping any nonce its response carried.
func (s Service) fetchCredentials(ctx context.Context, sess *session, nonce string, descriptors []descriptor) []string {
	state := fetchState{nonce: nonce, ids: make([]string, 0, len(descriptors))}
	for _, d := range descriptors {
		var err error
		if state, err = s.fetchOne(ctx, sess, state, d); err != nil {
			logrus.WithError(err).Warnf("skipping credential %v of %s", d.Types, sess.Issuer)
		}
	}
	return state.ids
}

func (s Service) fetchOne(ctx context.Context, sess *session, state fetchState, d descriptor) (fetchState, error) {
	proof, err := s.proofs.Build(ctx, state.nonce, sess.Issuer, sess.Holder)
	if err != nil {
		return state, err
	}
	response, err := s.client.RequestCredential(ctx, sess.CredentialEndpoint, sess.AccessToken, d.request(proof))
	if err != nil {
		return state, err
	}
	// the issuer rotated its nonce even if the credential cannot be kept
	if response.CNonce != "" {
		state.nonce = response.CNonce
	}
	if _, err = s.entities.EnsureEntity(ctx, entity.NewUserEntity(sess.UserID, s.clock.Now())); err != nil {
		return state, errors.Wrap(err, "ensuring wallet user")
	}

	format := response.Format
	if format == "" {
		format = d.Format
	}
	var id string
	if response.Deferred() {
		id, err = s.persistDeferred(ctx, sess, d, response.PendingTransactionID())
	} else {
		id, err = s.persistIssued(ctx, sess, d, format, response.Credential)
	}
	if err != nil {
		return state, err
	}
	state.ids = append(state.ids, id)
	return state, nil
}

func (s Service) persistIssued(ctx context.Context, sess *session, d descriptor, format string, raw model.Credential) (string, error) {
	issued, err := decodeCredential(format, raw, sess.Holder, d.Types)
	if err != nil {
		return "", err
	}
	if err = s.entities.PostEntity(ctx, issued.toEntity(issued.ID, sess.UserID)); err != nil {
		return "", errors.Wrapf(err, "storing credential %s", issued.ID)
	}
	logrus.Infof("stored credential %s of %s", issued.ID, sess.Issuer)
	return issued.ID, nil
}

// persistDeferred stores a placeholder credential and the transaction to complete it with
func (s Service) persistDeferred(ctx context.Context, sess *session, d descriptor, transactionID string) (string, error) {
	if sess.DeferredEndpoint == "" {
		return "", framework.NewErrorf(framework.Deserialization, "issuer %s deferred issuance but has no deferred credential endpoint", sess.Issuer)
	}
	pending := pendingCredential(sess.Holder, d.Types)
	if err := s.entities.PostEntity(ctx, pending.toEntity(pending.ID, sess.UserID)); err != nil {
		return "", errors.Wrapf(err, "storing deferred credential %s", pending.ID)
	}
	tx := entity.NewTransactionEntity(util.URN("transaction", uuid.NewString()), pending.ID, entity.TransactionData{
		TransactionID:    transactionID,
		AccessToken:      sess.AccessToken,
		DeferredEndpoint: sess.DeferredEndpoint,
	})
	if err := s.entities.PostEntity(ctx, tx); err != nil {
		if deleteErr := s.entities.DeleteCredentialByIDAndUserID(ctx, pending.ID, sess.UserID); deleteErr != nil {
			logrus.WithError(deleteErr).Errorf("could not remove deferred credential %s without transaction", pending.ID)
		}
		return "", errors.Wrapf(err, "storing transaction of deferred credential %s", pending.ID)
	}
	logrus.Infof("credential %s of %s is deferred", pending.ID, sess.Issuer)
	return pending.ID, nil
}
