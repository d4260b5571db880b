package oidc4vci

import (
	"context"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/common"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/oidc4vci/model"
)

const (
	credentialOfferParam    = "credential_offer"
	credentialOfferURIParam = "credential_offer_uri"
)

// ResolvedOffer is an offer together with the metadata of its issuer and authorization server
type ResolvedOffer struct {
	Offer                       model.CredentialOffer
	CredentialIssuerMetadata    model.CredentialIssuerMetadata
	AuthorisationServerMetadata model.AuthorisationServerMetadata
}

// Resolver dereferences credential offers and fetches the metadata needed to act on them
type Resolver struct {
	client *Client
}

func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve accepts an openid-credential-offer:// uri carrying the offer by value or by reference, or a plain https
// url of the offer.
func (r *Resolver) Resolve(ctx context.Context, offerURI string) (*ResolvedOffer, error) {
	logrus.Debugf("resolving credential offer: %s", util.SanitizeLog(offerURI))

	offer, err := r.GetCredentialOffer(ctx, offerURI)
	if err != nil {
		return nil, err
	}
	issuerMetadata, err := r.client.GetCredentialIssuerMetadata(ctx, offer.CredentialIssuer)
	if err != nil {
		return nil, err
	}
	asMetadata, err := r.client.GetAuthorisationServerMetadata(ctx, issuerMetadata.AuthorizationServerURL())
	if err != nil {
		return nil, err
	}
	return &ResolvedOffer{
		Offer:                       *offer,
		CredentialIssuerMetadata:    *issuerMetadata,
		AuthorisationServerMetadata: *asMetadata,
	}, nil
}

func (r *Resolver) GetCredentialOffer(ctx context.Context, offerURI string) (*model.CredentialOffer, error) {
	u, err := url.Parse(offerURI)
	if err != nil {
		return nil, framework.WrapError(err, framework.Deserialization, "invalid credential offer uri")
	}

	var offer model.CredentialOffer
	if byValue := u.Query().Get(credentialOfferParam); byValue != "" {
		if err = json.Unmarshal([]byte(byValue), &offer); err != nil {
			return nil, framework.WrapError(err, framework.Deserialization, "malformed credential offer")
		}
		return validOffer(&offer)
	}

	location := u.Query().Get(credentialOfferURIParam)
	if location == "" {
		if u.Scheme != "https" && u.Scheme != "http" {
			return nil, framework.NewError(framework.Deserialization, "credential_offer and credential_offer_uri are both empty")
		}
		location = offerURI
	}
	if err = common.GetJSON(ctx, r.client.http, location, "", &offer); err != nil {
		if framework.IsKind(err, framework.Communication) {
			return nil, framework.WrapError(err, framework.NotFound, "credential offer could not be retrieved")
		}
		return nil, err
	}
	return validOffer(&offer)
}

func validOffer(offer *model.CredentialOffer) (*model.CredentialOffer, error) {
	if offer.CredentialIssuer == "" {
		return nil, framework.NewError(framework.Deserialization, "credential offer has no credential_issuer")
	}
	if len(offer.Credentials) == 0 && len(offer.CredentialConfigurationIDs) == 0 {
		return nil, framework.NewError(framework.Deserialization, "credential offer lists no credentials")
	}
	return offer, nil
}
