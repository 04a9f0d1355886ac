package usecase

import (
	"context"

	"socialops/domain/dto"
	"socialops/domain/model"
	"socialops/infrastructure/logger"
	"socialops/infrastructure/retry"
	"socialops/infrastructure/security"
)

type IConnectionUsecase interface {
	InitiateConnect(ctx context.Context, userID string, p model.Platform) (*dto.ConnectStart, error)
	CompleteConnect(ctx context.Context, userID string, p model.Platform, params model.CallbackParams, cookie string) (*model.ConnectionSummary, error)
	Disconnect(ctx context.Context, userID string, p model.Platform) error
	ListConnections(ctx context.Context, userID string) ([]model.ConnectionSummary, error)
}

type connectionUsecase struct {
	store       *ConnectionStore
	adapters    AdapterResolver
	codec       *security.TransportStateCodec
	redirectURI func(p model.Platform) string
}

// NewConnectionUsecase builds the connect flow. redirectURI returns the
// callback URL registered with each platform.
func NewConnectionUsecase(store *ConnectionStore, adapters AdapterResolver, codec *security.TransportStateCodec, redirectURI func(p model.Platform) string) IConnectionUsecase {
	return &connectionUsecase{store: store, adapters: adapters, codec: codec, redirectURI: redirectURI}
}

func (u *connectionUsecase) InitiateConnect(ctx context.Context, userID string, p model.Platform) (*dto.ConnectStart, error) {
	adapter, err := u.adapters.Get(p)
	if err != nil {
		return nil, err
	}
	nonce, err := security.NewNonce()
	if err != nil {
		return nil, err
	}
	redirect := u.redirectURI(p)
	req, err := adapter.AuthURL(nonce, redirect)
	if err != nil {
		return nil, err
	}
	cookie, err := u.codec.Encode(&model.OAuthTransportState{
		State:        nonce,
		CodeVerifier: req.CodeVerifier,
		RedirectURI:  redirect,
		Platform:     p,
		UserID:       userID,
	})
	if err != nil {
		return nil, err
	}
	return &dto.ConnectStart{
		Platform:    p,
		RedirectURL: req.URL,
		Cookie:      cookie,
		MaxAge:      int(model.OAuthTransportStateTTL.Seconds()),
	}, nil
}

// CompleteConnect validates the callback against the transport cookie,
// exchanges the code and stores the connection. userID may be empty when the
// callback is not authenticated.
func (u *connectionUsecase) CompleteConnect(ctx context.Context, userID string, p model.Platform, params model.CallbackParams, cookie string) (*model.ConnectionSummary, error) {
	state, err := u.codec.Decode(cookie)
	if err != nil {
		return nil, err
	}
	// The platform redirect carries no bearer token; the sealed state names
	// the user. A caller that is authenticated must be that user.
	if state.Platform != p || (userID != "" && state.UserID != userID) {
		return nil, &model.OAuthStateError{Reason: "transport state belongs to another flow"}
	}
	userID = state.UserID
	if !security.StatesEqual(state.State, params.State) {
		return nil, &model.OAuthStateError{Reason: "state mismatch"}
	}
	if params.Error != "" {
		return nil, &model.OAuthError{Platform: p, Code: params.Error, Description: params.ErrorDescription}
	}
	if params.Code == "" {
		return nil, &model.OAuthError{Platform: p, Code: "missing_code"}
	}

	adapter, err := u.adapters.Get(p)
	if err != nil {
		return nil, err
	}
	// A throttled exchange leaves the code unused.
	bundle, err := retry.WithRetry(ctx, u.store.policy, func(ctx context.Context) (*model.TokenBundle, error) {
		return adapter.ExchangeCode(ctx, params.Code, state.RedirectURI, state.CodeVerifier)
	})
	if err != nil {
		return nil, err
	}
	profile, err := retry.WithRetry(ctx, u.store.policy, func(ctx context.Context) (*model.PlatformProfile, error) {
		return adapter.CurrentUser(ctx, bundle.AccessToken)
	})
	if err != nil {
		return nil, err
	}
	conn, err := u.store.Upsert(ctx, userID, p, profile, bundle)
	if err != nil {
		return nil, err
	}
	logger.GetLogger().
		WithField("platform", p).
		WithField("connection_id", conn.ID).
		Info("Platform connected")
	summary := conn.Summary()
	return &summary, nil
}

func (u *connectionUsecase) Disconnect(ctx context.Context, userID string, p model.Platform) error {
	return u.store.Disconnect(ctx, userID, p)
}

func (u *connectionUsecase) ListConnections(ctx context.Context, userID string) ([]model.ConnectionSummary, error) {
	return u.store.ListForUser(ctx, userID)
}
