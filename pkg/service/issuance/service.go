package issuance

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/ebsi"
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/oidc4vci"
	"github.com/tbd54566975/wallet-service/pkg/service/oidc4vci/model"
)

type OfferResolver interface {
	Resolve(ctx context.Context, offerURI string) (*oidc4vci.ResolvedOffer, error)
}

type DIDCreator interface {
	CreateDIDKey(ctx context.Context) (string, error)
}

type EBSIDIDProvider interface {
	DID() (string, error)
}

type AuthorizationCodeExchanger interface {
	AuthorizationCodeToken(ctx context.Context, request ebsi.TokenRequest) (*model.TokenResponse, error)
}

// Service redeems credential offers and completes deferred issuance
type Service struct {
	resolver OfferResolver
	client   oidc4vci.IssuerClient
	proofs   *oidc4vci.ProofBuilder
	dids     DIDCreator
	entities entity.Store
	clock    clock.Clock

	// nil when EBSI issuance is disabled
	ebsiDID EBSIDIDProvider
	ebsi    AuthorizationCodeExchanger
}

func (s Service) Type() framework.Type {
	return framework.Issuance
}

func (s Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.resolver == nil {
		ae.AppendString("no offer resolver configured")
	}
	if s.client == nil {
		ae.AppendString("no issuer client configured")
	}
	if s.proofs == nil {
		ae.AppendString("no proof builder configured")
	}
	if s.dids == nil {
		ae.AppendString("no did service configured")
	}
	if s.entities == nil {
		ae.AppendString("no entity store configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("issuance service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func NewIssuanceService(resolver OfferResolver, client oidc4vci.IssuerClient, proofs *oidc4vci.ProofBuilder, dids DIDCreator, entities entity.Store, c clock.Clock) (*Service, error) {
	if c == nil {
		c = clock.New()
	}
	service := Service{
		resolver: resolver,
		client:   client,
		proofs:   proofs,
		dids:     dids,
		entities: entities,
		clock:    c,
	}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

// WithEBSI enables the authorization code branch, holding credentials with the wallet's EBSI DID
func (s *Service) WithEBSI(ebsiDID EBSIDIDProvider, exchanger AuthorizationCodeExchanger) *Service {
	s.ebsiDID = ebsiDID
	s.ebsi = exchanger
	return s
}

// IssueFromOffer redeems a credential offer and returns the ids of the credentials that were stored. Credentials
// failing individually are skipped.
func (s Service) IssueFromOffer(ctx context.Context, request IssueRequest) (*IssueResponse, error) {
	logrus.Debugf("issuing from offer: %s", util.SanitizeLog(request.OfferURI))

	userID, err := util.SubjectFromJWT(request.AccessToken)
	if err != nil {
		return nil, framework.WrapError(err, framework.MalformedJWT, "could not identify the wallet user")
	}
	resolved, err := s.resolver.Resolve(ctx, request.OfferURI)
	if err != nil {
		return nil, err
	}

	flow := SelectFlow(resolved.Offer)
	logrus.Debugf("redeeming offer of %s through the %s flow", resolved.Offer.CredentialIssuer, flow)

	var ids []string
	switch flow {
	case DOMEProfileFlow:
		ids, err = s.domeProfile(ctx, userID, request.Pin, *resolved)
	case PreAuthorizedFlow:
		ids, err = s.preAuthorized(ctx, userID, request.Pin, *resolved)
	default:
		ids, err = s.authorizedCode(ctx, userID, *resolved)
	}
	if err != nil {
		return nil, err
	}
	return &IssueResponse{CredentialIDs: ids}, nil
}

func (s Service) domeProfile(ctx context.Context, userID, pin string, resolved oidc4vci.ResolvedOffer) ([]string, error) {
	if len(resolved.Offer.CredentialConfigurationIDs) == 0 {
		return nil, framework.NewError(framework.Deserialization, "offer lists no credential configuration")
	}
	id := resolved.Offer.CredentialConfigurationIDs[0]
	format, ok := resolved.CredentialIssuerMetadata.ConfigurationFormat(id)
	if !ok {
		return nil, framework.NewErrorf(framework.Deserialization, "issuer does not support credential configuration %s", id)
	}
	types := []string{id}
	if definition := resolved.CredentialIssuerMetadata.CredentialConfigurationsSupported[id].CredentialDefinition; definition != nil && len(definition.Type) > 0 {
		types = definition.Type
	}

	sess, nonce, err := s.preAuthorizedSession(ctx, userID, pin, resolved)
	if err != nil {
		return nil, err
	}
	return s.fetchCredentials(ctx, sess, nonce, []descriptor{{Format: format, Types: types, CredentialConfiguration: id}}), nil
}

func (s Service) preAuthorized(ctx context.Context, userID, pin string, resolved oidc4vci.ResolvedOffer) ([]string, error) {
	sess, nonce, err := s.preAuthorizedSession(ctx, userID, pin, resolved)
	if err != nil {
		return nil, err
	}
	return s.fetchCredentials(ctx, sess, nonce, offeredDescriptors(resolved)), nil
}

// preAuthorizedSession redeems the pre-authorized code for a fresh holder DID
func (s Service) preAuthorizedSession(ctx context.Context, userID, pin string, resolved oidc4vci.ResolvedOffer) (*session, string, error) {
	grant := resolved.Offer.Grants.PreAuthorizedCode
	if grant == nil {
		return nil, "", framework.NewError(framework.Deserialization, "offer has no pre-authorized code grant")
	}
	if grant.PinRequired() && pin == "" {
		return nil, "", framework.NewError(framework.InvalidPin, "the offer requires a PIN")
	}
	token, err := s.client.PreAuthorizedToken(ctx, resolved.AuthorisationServerMetadata.TokenEndpoint, grant.PreAuthorizedCode, pin)
	if err != nil {
		return nil, "", err
	}
	holder, err := s.dids.CreateDIDKey(ctx)
	if err != nil {
		return nil, "", errors.Wrap(err, "creating holder DID")
	}
	return newSession(userID, holder, token.AccessToken, resolved), token.CNonce, nil
}

func (s Service) authorizedCode(ctx context.Context, userID string, resolved oidc4vci.ResolvedOffer) ([]string, error) {
	if s.ebsi == nil || s.ebsiDID == nil {
		return nil, framework.NewError(framework.Internal, "EBSI issuance is disabled")
	}
	holder, err := s.ebsiDID.DID()
	if err != nil {
		return nil, err
	}
	token, err := s.ebsi.AuthorizationCodeToken(ctx, ebsi.TokenRequest{
		UserID:                      userID,
		DID:                         holder,
		Offer:                       resolved.Offer,
		IssuerMetadata:              resolved.CredentialIssuerMetadata,
		AuthorisationServerMetadata: resolved.AuthorisationServerMetadata,
	})
	if err != nil {
		return nil, err
	}
	return s.fetchCredentials(ctx, newSession(userID, holder, token.AccessToken, resolved), token.CNonce, offeredDescriptors(resolved)), nil
}

func newSession(userID, holder, accessToken string, resolved oidc4vci.ResolvedOffer) *session {
	return &session{
		UserID:             userID,
		Holder:             holder,
		Issuer:             resolved.Offer.CredentialIssuer,
		CredentialEndpoint: resolved.CredentialIssuerMetadata.CredentialEndpoint,
		DeferredEndpoint:   resolved.CredentialIssuerMetadata.DeferredCredentialEndpoint,
		AccessToken:        accessToken,
	}
}

// offeredDescriptors lists the offered credentials, completing those offered by id from the issuer metadata
func offeredDescriptors(resolved oidc4vci.ResolvedOffer) []descriptor {
	descriptors := make([]descriptor, 0, len(resolved.Offer.Credentials))
	for _, offered := range resolved.Offer.Credentials {
		d := descriptor{Format: offered.Format, Types: offered.Types}
		if d.Format == "" && len(d.Types) == 1 {
			for _, supported := range resolved.CredentialIssuerMetadata.CredentialsSupported {
				if supported.ID == d.Types[0] {
					d.Format = supported.Format
					if len(supported.Types) > 0 {
						d.Types = supported.Types
					}
					break
				}
			}
		}
		descriptors = append(descriptors, d)
	}
	return descriptors
}
