package entity

import (
	"context"
	"fmt"
	"sort"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/storage"
)

// Store is the contract of the entity store ("broker") holding user, credential and transaction documents
type Store interface {
	// PostEntity creates the entity, failing with a Conflict error when it already exists
	PostEntity(ctx context.Context, entity Entity) error
	// EnsureEntity creates the entity if absent and reports whether it was created
	EnsureEntity(ctx context.Context, entity Entity) (bool, error)
	GetEntityByID(ctx context.Context, id string) ([]byte, error)
	// UpdateEntity replaces an existing entity, failing with a NotFound error when it does not exist
	UpdateEntity(ctx context.Context, entity Entity) error
	GetAllCredentialsByUserID(ctx context.Context, userID string) ([]CredentialEntity, error)
	GetCredentialByIDAndUserID(ctx context.Context, credentialID, userID string) (*CredentialEntity, error)
	GetCredentialByCredentialTypeAndUserID(ctx context.Context, credentialType, userID string) ([]CredentialEntity, error)
	GetTransactionLinkedToCredential(ctx context.Context, credentialID string) (*TransactionEntity, error)
	DeleteCredentialByIDAndUserID(ctx context.Context, credentialID, userID string) error
	DeleteTransactionByTransactionID(ctx context.Context, transactionID string) error
}

var namespaces = map[string]string{
	UserEntityType:        storage.MakeNamespace("entity", "user"),
	CredentialEntityType:  storage.MakeNamespace("entity", "credential"),
	TransactionEntityType: storage.MakeNamespace("entity", "transaction"),
	WalletDIDEntityType:   storage.MakeNamespace("entity", "did"),
}

// StorageStore implements Store over a key/value storage engine, one namespace per entity type
type StorageStore struct {
	db storage.ServiceStorage
}

func NewStorageStore(db storage.ServiceStorage) (*StorageStore, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	return &StorageStore{db: db}, nil
}

func (s *StorageStore) Type() framework.Type {
	return framework.Entity
}

func (s *StorageStore) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.db == nil {
		ae.AppendString("no storage configured")
	} else if !s.db.IsOpen() {
		ae.AppendString(fmt.Sprintf("%s storage is not reachable", s.db.Type()))
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("entity store is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func namespaceFor(entity Entity) (string, error) {
	ns, ok := namespaces[entity.EntityType()]
	if !ok {
		return "", errors.Errorf("unsupported entity type: %s", entity.EntityType())
	}
	if entity.EntityID() == "" {
		return "", errors.New("entity id cannot be empty")
	}
	return ns, nil
}

func (s *StorageStore) PostEntity(ctx context.Context, entity Entity) error {
	created, err := s.EnsureEntity(ctx, entity)
	if err != nil {
		return err
	}
	if !created {
		return framework.NewErrorf(framework.Conflict, "entity %s already exists", entity.EntityID())
	}
	return nil
}

func (s *StorageStore) EnsureEntity(ctx context.Context, entity Entity) (bool, error) {
	ns, err := namespaceFor(entity)
	if err != nil {
		return false, err
	}
	entityBytes, err := json.Marshal(entity)
	if err != nil {
		return false, framework.WrapError(err, framework.Serialization, "could not serialize entity")
	}
	created, err := s.db.WriteIfAbsent(ctx, ns, entity.EntityID(), entityBytes)
	if err != nil {
		return false, sdkutil.LoggingErrorMsgf(err, "writing entity: %s", entity.EntityID())
	}
	if created {
		logrus.Debugf("created %s entity: %s", entity.EntityType(), entity.EntityID())
	}
	return created, nil
}

func (s *StorageStore) GetEntityByID(ctx context.Context, id string) ([]byte, error) {
	for _, ns := range namespaces {
		entityBytes, err := s.db.Read(ctx, ns, id)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "reading entity: %s", id)
		}
		if entityBytes != nil {
			return entityBytes, nil
		}
	}
	return nil, framework.NewErrorf(framework.NotFound, "entity %s not found", id)
}

func (s *StorageStore) UpdateEntity(ctx context.Context, entity Entity) error {
	ns, err := namespaceFor(entity)
	if err != nil {
		return err
	}
	exists, err := s.db.Exists(ctx, ns, entity.EntityID())
	if err != nil {
		return sdkutil.LoggingErrorMsgf(err, "checking entity: %s", entity.EntityID())
	}
	if !exists {
		return framework.NewErrorf(framework.NotFound, "entity %s not found", entity.EntityID())
	}
	entityBytes, err := json.Marshal(entity)
	if err != nil {
		return framework.WrapError(err, framework.Serialization, "could not serialize entity")
	}
	return s.db.Write(ctx, ns, entity.EntityID(), entityBytes)
}

func (s *StorageStore) GetAllCredentialsByUserID(ctx context.Context, userID string) ([]CredentialEntity, error) {
	return s.filterCredentials(ctx, func(c CredentialEntity) bool {
		return c.BelongsTo.Object == UserEntityID(userID)
	})
}

func (s *StorageStore) GetCredentialByIDAndUserID(ctx context.Context, credentialID, userID string) (*CredentialEntity, error) {
	credBytes, err := s.db.Read(ctx, namespaces[CredentialEntityType], credentialID)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "reading credential: %s", credentialID)
	}
	if credBytes == nil {
		return nil, framework.NewErrorf(framework.NotFound, "credential %s not found", credentialID)
	}
	var cred CredentialEntity
	if err = json.Unmarshal(credBytes, &cred); err != nil {
		return nil, framework.WrapError(err, framework.Deserialization, "stored credential is malformed")
	}
	if cred.BelongsTo.Object != UserEntityID(userID) {
		return nil, framework.NewErrorf(framework.NotFound, "credential %s not found", credentialID)
	}
	return &cred, nil
}

func (s *StorageStore) GetCredentialByCredentialTypeAndUserID(ctx context.Context, credentialType, userID string) ([]CredentialEntity, error) {
	return s.filterCredentials(ctx, func(c CredentialEntity) bool {
		return c.BelongsTo.Object == UserEntityID(userID) && c.HasType(credentialType)
	})
}

func (s *StorageStore) filterCredentials(ctx context.Context, keep func(CredentialEntity) bool) ([]CredentialEntity, error) {
	all, err := s.db.ReadAll(ctx, namespaces[CredentialEntityType])
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "reading credentials")
	}
	creds := make([]CredentialEntity, 0)
	for id, credBytes := range all {
		var cred CredentialEntity
		if err = json.Unmarshal(credBytes, &cred); err != nil {
			logrus.WithError(err).Warnf("skipping malformed credential entity: %s", id)
			continue
		}
		if keep(cred) {
			creds = append(creds, cred)
		}
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].ID < creds[j].ID })
	return creds, nil
}

func (s *StorageStore) GetTransactionLinkedToCredential(ctx context.Context, credentialID string) (*TransactionEntity, error) {
	all, err := s.db.ReadAll(ctx, namespaces[TransactionEntityType])
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "reading transactions")
	}
	var linked []TransactionEntity
	for _, txBytes := range all {
		var tx TransactionEntity
		if err = json.Unmarshal(txBytes, &tx); err != nil {
			return nil, framework.WrapError(err, framework.Deserialization, "stored transaction is malformed")
		}
		if tx.LinkedTo.Object == credentialID {
			linked = append(linked, tx)
		}
	}
	switch len(linked) {
	case 0:
		return nil, framework.NewErrorf(framework.NotFound, "no transaction linked to credential %s", credentialID)
	case 1:
		return &linked[0], nil
	}
	return nil, framework.NewErrorf(framework.Internal, "%d transactions linked to credential %s", len(linked), credentialID)
}

func (s *StorageStore) DeleteCredentialByIDAndUserID(ctx context.Context, credentialID, userID string) error {
	if _, err := s.GetCredentialByIDAndUserID(ctx, credentialID, userID); err != nil {
		return err
	}
	if err := s.db.Delete(ctx, namespaces[CredentialEntityType], credentialID); err != nil {
		return sdkutil.LoggingErrorMsgf(err, "deleting credential: %s", credentialID)
	}
	return nil
}

func (s *StorageStore) DeleteTransactionByTransactionID(ctx context.Context, transactionID string) error {
	ns := namespaces[TransactionEntityType]
	exists, err := s.db.Exists(ctx, ns, transactionID)
	if err != nil {
		return sdkutil.LoggingErrorMsgf(err, "checking transaction: %s", transactionID)
	}
	if !exists {
		return framework.NewErrorf(framework.NotFound, "transaction %s not found", transactionID)
	}
	if err = s.db.Delete(ctx, ns, transactionID); err != nil {
		return sdkutil.LoggingErrorMsgf(err, "deleting transaction: %s", transactionID)
	}
	return nil
}

var _ Store = (*StorageStore)(nil)
