package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"unifydata-backend/pkg/pipelineerr"
)

// GoogleDrive connects a Drive account. Google Docs and Sheets are exported to
// plain formats; regular files are downloaded as-is.
type GoogleDrive struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

func NewGoogleDrive(clientID, clientSecret, redirectURI string) *GoogleDrive {
	return &GoogleDrive{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				drive.DriveReadonlyScope,
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		},
		httpClient: newHTTPClient(),
	}
}

func (g *GoogleDrive) Type() string { return "google_drive" }

func (g *GoogleDrive) AuthorizationURL(state, verifier string) string {
	// prompt=consent forces Google to reissue the refresh token.
	return g.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier),
	)
}

func (g *GoogleDrive) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	tok, err := g.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: google token exchange: %v", pipelineerr.ErrAuthentication, err)
	}
	return googleTokenSet(tok), nil
}

func (g *GoogleDrive) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	src := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: google token refresh: %v", pipelineerr.ErrAuthentication, err)
	}
	set := googleTokenSet(tok)
	if set.RefreshToken == "" {
		// Google omits the refresh token on refresh; keep the old one.
		set.RefreshToken = refreshToken
	}
	return set, nil
}

func googleTokenSet(tok *oauth2.Token) *TokenSet {
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(GoogleTokenLifetime)
	}
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

func (g *GoogleDrive) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: google userinfo: %v", pipelineerr.ErrTransientProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("google", resp.StatusCode)
	}

	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode google userinfo: %w", err)
	}
	return &UserInfo{ID: info.ID, Email: info.Email, Name: info.Name}, nil
}

// exportable maps Google-native types to the export format we can normalize.
var exportable = map[string]struct{ mime, ext string }{
	"application/vnd.google-apps.document":     {"text/plain", ".txt"},
	"application/vnd.google-apps.spreadsheet":  {"text/csv", ".csv"},
	"application/vnd.google-apps.presentation": {"text/plain", ".txt"},
}

func (g *GoogleDrive) FetchDocuments(ctx context.Context, tokens *TokenSet) ([]SourceDocument, error) {
	src := g.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       tokens.ExpiresAt,
	})
	svc, err := drive.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	var docs []SourceDocument
	pageToken := ""
	for {
		call := svc.Files.List().
			Context(ctx).
			Q("trashed = false").
			PageSize(100).
			Fields("nextPageToken, files(id, name, mimeType, modifiedTime, webViewLink, size)")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("%w: list drive files: %v", pipelineerr.ErrTransientProvider, err)
		}

		for _, f := range page.Files {
			doc, err := g.fetchFile(ctx, svc, f)
			if err != nil {
				return nil, err
			}
			if doc != nil {
				docs = append(docs, *doc)
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return docs, nil
}

func (g *GoogleDrive) fetchFile(ctx context.Context, svc *drive.Service, f *drive.File) (*SourceDocument, error) {
	var (
		resp     *http.Response
		err      error
		filename = f.Name
	)
	if export, ok := exportable[f.MimeType]; ok {
		resp, err = svc.Files.Export(f.Id, export.mime).Context(ctx).Download()
		filename = f.Name + export.ext
	} else if isGoogleNative(f.MimeType) {
		// Forms, folders and other native types have no text export.
		return nil, nil
	} else {
		resp, err = svc.Files.Get(f.Id).Context(ctx).Download()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %v", pipelineerr.ErrTransientProvider, f.Id, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", pipelineerr.ErrTransientProvider, f.Id, err)
	}

	modifiedAt, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	return &SourceDocument{
		ExternalID: f.Id,
		Title:      f.Name,
		Filename:   filename,
		Content:    content,
		URL:        f.WebViewLink,
		ModifiedAt: modifiedAt,
	}, nil
}

func isGoogleNative(mimeType string) bool {
	const prefix = "application/vnd.google-apps."
	return len(mimeType) > len(prefix) && mimeType[:len(prefix)] == prefix
}
