package feed

import "strings"

// Record is one vulnerability as delivered by the feed.
type Record struct {
	CVEID            string `json:"cve_id"`
	Description      string `json:"description"`
	Published        string `json:"published,omitempty"`
	LastModified     string `json:"last_modified"`
	LastUpdatedAt    string `json:"last_updated_at"` // feed response timestamp
	VulnStatus       string `json:"vuln_status,omitempty"`
	SourceIdentifier string `json:"source_identifier,omitempty"`
}

// response covers both the 2.0 API and the legacy 1.x JSON feed. Pointers
// distinguish an absent item list from an empty one.
type response struct {
	Timestamp       string           `json:"timestamp"`
	Vulnerabilities *[]vulnerability `json:"vulnerabilities"`
	Result          *legacyResult    `json:"result"`
}

type vulnerability struct {
	CVE struct {
		ID               string       `json:"id"`
		SourceIdentifier string       `json:"sourceIdentifier"`
		Published        string       `json:"published"`
		LastModified     string       `json:"lastModified"`
		VulnStatus       string       `json:"vulnStatus"`
		Descriptions     []langString `json:"descriptions"`
	} `json:"cve"`
}

type legacyResult struct {
	Timestamp string        `json:"CVE_data_timestamp"`
	Items     *[]legacyItem `json:"CVE_Items"`
}

// legacyItem also accepts items already flattened to the CVE table's column
// names; those fields win over the nested 1.x ones when present.
type legacyItem struct {
	CVEID         string `json:"cve_id"`
	Description   string `json:"description"`
	LastModified  string `json:"last_modified"`
	LastUpdatedAt string `json:"last_updated_at"`

	CVE struct {
		Meta struct {
			ID       string `json:"ID"`
			Assigner string `json:"ASSIGNER"`
		} `json:"CVE_data_meta"`
		Description struct {
			Data []langString `json:"description_data"`
		} `json:"description"`
	} `json:"cve"`
	PublishedDate    string `json:"publishedDate"`
	LastModifiedDate string `json:"lastModifiedDate"`
}

type langString struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// english returns the first English value, falling back to the first value.
func english(values []langString) string {
	for _, v := range values {
		if strings.EqualFold(v.Lang, "en") {
			return v.Value
		}
	}
	if len(values) > 0 {
		return values[0].Value
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// records flattens a decoded response. ok is false when the body carried no
// item list in either shape.
func (r *response) records() (out []Record, ok bool) {
	switch {
	case r.Vulnerabilities != nil:
		out = make([]Record, 0, len(*r.Vulnerabilities))
		for _, v := range *r.Vulnerabilities {
			out = append(out, Record{
				CVEID:            v.CVE.ID,
				Description:      english(v.CVE.Descriptions),
				Published:        v.CVE.Published,
				LastModified:     v.CVE.LastModified,
				LastUpdatedAt:    r.Timestamp,
				VulnStatus:       v.CVE.VulnStatus,
				SourceIdentifier: v.CVE.SourceIdentifier,
			})
		}
		return out, true

	case r.Result != nil && r.Result.Items != nil:
		ts := r.Result.Timestamp
		if ts == "" {
			ts = r.Timestamp
		}
		out = make([]Record, 0, len(*r.Result.Items))
		for _, it := range *r.Result.Items {
			out = append(out, Record{
				CVEID:            firstNonEmpty(it.CVEID, it.CVE.Meta.ID),
				Description:      firstNonEmpty(it.Description, english(it.CVE.Description.Data)),
				Published:        it.PublishedDate,
				LastModified:     firstNonEmpty(it.LastModified, it.LastModifiedDate),
				LastUpdatedAt:    firstNonEmpty(it.LastUpdatedAt, ts),
				SourceIdentifier: it.CVE.Meta.Assigner,
			})
		}
		return out, true

	default:
		return []Record{}, false
	}
}
