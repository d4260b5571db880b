package entity

import (
	"time"

	"github.com/tbd54566975/wallet-service/internal/util"
)

const (
	UserEntityType        = "userEntity"
	CredentialEntityType  = "Credential"
	TransactionEntityType = "Transaction"
	WalletDIDEntityType   = "WalletDID"

	PropertyType     = "Property"
	RelationshipType = "Relationship"
)

type CredentialStatus string

const (
	// StatusValid marks a signed, final credential
	StatusValid CredentialStatus = "VALID"
	// StatusIssued marks a credential whose issuance was deferred and is not signed yet
	StatusIssued  CredentialStatus = "ISSUED"
	StatusRevoked CredentialStatus = "REVOKED"
	StatusExpired CredentialStatus = "EXPIRED"
)

// Entity is any document the entity store can hold
type Entity interface {
	EntityID() string
	EntityType() string
}

type Property[T any] struct {
	Type  string `json:"type"`
	Value T      `json:"value"`
}

func NewProperty[T any](value T) Property[T] {
	return Property[T]{Type: PropertyType, Value: value}
}

type Relationship struct {
	Type   string `json:"type"`
	Object string `json:"object"`
}

func NewRelationship(object string) Relationship {
	return Relationship{Type: RelationshipType, Object: object}
}

// UserEntityID is the entity id of the wallet user identified by the subject of their access token
func UserEntityID(userID string) string {
	return util.URN("entities", "userId", userID)
}

type UserEntity struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	CreatedAt Property[string] `json:"createdAt"`
}

func NewUserEntity(userID string, now time.Time) UserEntity {
	return UserEntity{
		ID:        UserEntityID(userID),
		Type:      UserEntityType,
		CreatedAt: NewProperty(now.UTC().Format(time.RFC3339)),
	}
}

func (u UserEntity) EntityID() string   { return u.ID }
func (u UserEntity) EntityType() string { return UserEntityType }

// CredentialEntity holds one credential in one or more formats. JSONCredential is always populated.
type CredentialEntity struct {
	ID              string                     `json:"id"`
	Type            string                     `json:"type"`
	Status          Property[CredentialStatus] `json:"status"`
	CredentialTypes Property[[]string]         `json:"credentialType"`
	JWTCredential   *Property[string]          `json:"jwt_vc,omitempty"`
	CWTCredential   *Property[string]          `json:"cwt_vc,omitempty"`
	JSONCredential  Property[map[string]any]   `json:"json_vc"`
	// HolderDID is the wallet DID the credential was requested for, the one able to present it
	HolderDID       *Property[string]          `json:"holderDid,omitempty"`
	BelongsTo       Relationship               `json:"belongsTo"`
}

func (c CredentialEntity) EntityID() string   { return c.ID }
func (c CredentialEntity) EntityType() string { return CredentialEntityType }

// HasType reports whether the credential declares the given type
func (c CredentialEntity) HasType(credentialType string) bool {
	for _, t := range c.CredentialTypes.Value {
		if t == credentialType {
			return true
		}
	}
	return false
}

// AvailableFormats lists the formats the credential is held in
func (c CredentialEntity) AvailableFormats() []string {
	formats := make([]string, 0, 3)
	if c.JWTCredential != nil {
		formats = append(formats, "jwt_vc")
	}
	if c.CWTCredential != nil {
		formats = append(formats, "cwt_vc")
	}
	return append(formats, "json_vc")
}

type TransactionData struct {
	TransactionID    string `json:"transaction_id"`
	AccessToken      string `json:"access_token"`
	DeferredEndpoint string `json:"deferred_endpoint"`
}

type TransactionEntity struct {
	ID          string                    `json:"id"`
	Type        string                    `json:"type"`
	Transaction Property[TransactionData] `json:"transaction"`
	LinkedTo    Relationship              `json:"linkedTo"`
}

func NewTransactionEntity(id, credentialID string, data TransactionData) TransactionEntity {
	return TransactionEntity{
		ID:          id,
		Type:        TransactionEntityType,
		Transaction: NewProperty(data),
		LinkedTo:    NewRelationship(credentialID),
	}
}

func (t TransactionEntity) EntityID() string   { return t.ID }
func (t TransactionEntity) EntityType() string { return TransactionEntityType }

// WalletDIDEntity records a DID the wallet itself holds, such as the one used towards EBSI issuers
type WalletDIDEntity struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	DID  Property[string] `json:"did"`
}

func NewWalletDIDEntity(name, did string) WalletDIDEntity {
	return WalletDIDEntity{
		ID:   util.URN("entities", "walletDid", name),
		Type: WalletDIDEntityType,
		DID:  NewProperty(did),
	}
}

func (w WalletDIDEntity) EntityID() string   { return w.ID }
func (w WalletDIDEntity) EntityType() string { return WalletDIDEntityType }
