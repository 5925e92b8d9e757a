package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/twitter/script"
	"github.com/ytget/twitvid/types"
)

// Provider names.
const (
	ProviderSparky = "sparky"
	ProviderCyril  = "cyril"
	ProviderScript = "script"
)

// Default endpoints; the escaped post URL is appended.
const (
	SparkyEndpoint = "https://api-aswin-sparky.koyeb.app/api/downloader/twiter?url="
	CyrilEndpoint  = "https://apis.davidcyriltech.my.id/twitter?url="
)

// parseFunc maps a successful (2xx) response body to a VideoInfo.
type parseFunc func(ctx context.Context, body []byte) (*types.VideoInfo, error)

type sparkyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		HD        string `json:"HD"`
		SD        string `json:"SD"`
		Thumbnail string `json:"thumbnail"`
	} `json:"data"`
}

func parseSparky(_ context.Context, body []byte) (*types.VideoInfo, error) {
	var r sparkyResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: invalid response from API: %v", errs.ErrProviderFailed, err)
	}
	if !r.Status || r.Data == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrVideoNotFound, orDefault(r.Message, "invalid response from API"))
	}
	info := &types.VideoInfo{
		Thumbnail: r.Data.Thumbnail,
		Links:     types.MediaLinks{HD: r.Data.HD, SD: r.Data.SD},
	}
	if info.Links.Empty() {
		return nil, fmt.Errorf("%w: %s", errs.ErrNoLinks, orDefault(r.Message, "no downloadable links available"))
	}
	return info, nil
}

type cyrilResponse struct {
	Success     bool   `json:"success"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	VideoSD     string `json:"video_sd"`
	VideoHD     string `json:"video_hd"`
	Audio       string `json:"audio"`
	Creator     string `json:"creator"`
}

func parseCyril(_ context.Context, body []byte) (*types.VideoInfo, error) {
	var r cyrilResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: invalid response from API: %v", errs.ErrProviderFailed, err)
	}
	if !r.Success {
		return nil, fmt.Errorf("%w: %s", errs.ErrVideoNotFound, orDefault(r.Description, "video not found"))
	}
	info := &types.VideoInfo{
		Description: r.Description,
		Creator:     r.Creator,
		Thumbnail:   r.Thumbnail,
		Links:       types.MediaLinks{HD: r.VideoHD, SD: r.VideoSD, Audio: r.Audio},
	}
	if info.Links.Empty() {
		return nil, fmt.Errorf("%w: %s", errs.ErrNoLinks, orDefault(r.Description, "no downloadable links available"))
	}
	return info, nil
}

func scriptParser(m script.Mapper) parseFunc {
	return func(ctx context.Context, body []byte) (*types.VideoInfo, error) {
		if !json.Valid(body) {
			return nil, fmt.Errorf("%w: invalid response from API", errs.ErrProviderFailed)
		}
		res, err := m.Map(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrProviderFailed, err)
		}
		if res == nil {
			return nil, errs.ErrVideoNotFound
		}
		info := &types.VideoInfo{
			Description: res.Description,
			Creator:     res.Creator,
			Thumbnail:   res.Thumbnail,
			Links:       types.MediaLinks{HD: res.HD, SD: res.SD, Audio: res.Audio},
		}
		if info.Links.Empty() {
			return nil, errs.ErrNoLinks
		}
		return info, nil
	}
}

// errorMessage extracts {"message": "..."} from an error body.
func errorMessage(body []byte, status int) string {
	var r struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &r) == nil && strings.TrimSpace(r.Message) != "" {
		return r.Message
	}
	return fmt.Sprintf("API responded with status: %d", status)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
