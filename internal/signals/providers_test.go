package signals

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/stretchr/testify/require"
)

type fetchFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) { return f(ctx, rawURL) }

func staticFetcher(body string) fetchFunc {
	return func(context.Context, string) ([]byte, error) { return []byte(body), nil }
}

func failingFetcher() fetchFunc {
	return func(context.Context, string) ([]byte, error) { return nil, errors.New("connection refused") }
}

func testRequest() risk.Request {
	start := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	return risk.Request{
		Area:       risk.Area{Point: &risk.Point{Lat: 51.5, Lon: -0.12}},
		Window:     risk.Window{Start: start, End: start.Add(2 * time.Hour)},
		Thresholds: risk.DefaultThresholds(),
		Credentials: identity.CredentialSet{
			PilotID:        "GBR-RP-1234",
			PilotExpiry:    "2027-01-01",
			OperatorID:     "GBR-OP-5678",
			OperatorExpiry: "2027-01-01",
		},
	}
}

func TestProviders_CoverRegistry(t *testing.T) {
	providers := Providers(Options{Fetcher: failingFetcher()})
	_, err := risk.NewRunner(providers, nil)
	require.NoError(t, err)
}

func TestProviders_FailuresAreUnknown(t *testing.T) {
	req := testRequest()
	for _, p := range Providers(Options{Fetcher: failingFetcher(), NOTAMURL: "https://notams.example/{lat}/{lon}"}) {
		f := p.Evaluate(context.Background(), req)
		require.Equal(t, p.Category(), f.Category)
		switch p.Category() {
		case risk.CategoryNearestCare, risk.CategoryCredentialExpiry:
			require.Empty(t, f.ErrorReason)
		default:
			require.Equal(t, risk.SeverityUnknown, f.Severity, p.Category())
			require.Contains(t, f.ErrorReason, "connection refused")
		}
	}
}

const forecastJSON = `{"hourly":{
	"time":["2026-06-01T08:00","2026-06-01T09:00","2026-06-01T10:00","2026-06-01T11:00","2026-06-01T12:00"],
	"wind_speed_10m":[40,%s,%s,%s,40],
	"wind_gusts_10m":[50,20,20,20,50],
	"precipitation":[0,0,%s,0,0]}}`

func sprintfForecast(speeds [3]string, rain string) string {
	out := forecastJSON
	for _, v := range []string{speeds[0], speeds[1], speeds[2], rain} {
		out = strings.Replace(out, "%s", v, 1)
	}
	return out
}

func TestWeather_Classification(t *testing.T) {
	tests := []struct {
		name   string
		speeds [3]string
		rain   string
		rainOK bool
		want   risk.Severity
	}{
		{name: "calm and dry", speeds: [3]string{"5", "8", "6"}, rain: "0", want: risk.SeverityGreen},
		{name: "amber wind", speeds: [3]string{"5", "16", "6"}, rain: "0", want: risk.SeverityAmber},
		{name: "red wind", speeds: [3]string{"5", "8", "26"}, rain: "0", want: risk.SeverityRed},
		{name: "rain triggers caution", speeds: [3]string{"5", "8", "6"}, rain: "0.4", want: risk.SeverityAmber},
		{name: "rain ignored when disabled", speeds: [3]string{"5", "8", "6"}, rain: "0.4", rainOK: true, want: risk.SeverityGreen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requested string
			w := &Weather{
				baseURL: "https://weather.example/v1/forecast",
				fetcher: fetchFunc(func(_ context.Context, raw string) ([]byte, error) {
					requested = raw
					return []byte(sprintfForecast(tt.speeds, tt.rain)), nil
				}),
			}
			req := testRequest()
			if tt.rainOK {
				req.Thresholds.RainTriggersCaution = false
			}

			f := w.Evaluate(context.Background(), req)
			require.Equal(t, tt.want, f.Severity, f.Detail)

			u, err := url.Parse(requested)
			require.NoError(t, err)
			require.Equal(t, "mph", u.Query().Get("wind_speed_unit"))
			require.Equal(t, "2026-06-01", u.Query().Get("start_date"))
		})
	}
}

func TestWeather_WindowOutsideForecast(t *testing.T) {
	w := &Weather{baseURL: "https://weather.example", fetcher: staticFetcher(`{"hourly":{"time":["2020-01-01T00:00"],"wind_speed_10m":[1]}}`)}
	f := w.Evaluate(context.Background(), testRequest())
	require.Equal(t, risk.SeverityUnknown, f.Severity)
}

func TestClassifyNOTAMText(t *testing.T) {
	require.Equal(t, risk.SeverityGreen, ClassifyNOTAMText("").Severity)
	require.Equal(t, risk.SeverityAmber, ClassifyNOTAMText("A1234/26 PARACHUTING ACTIVITY WI 2NM").Severity)
	require.Equal(t, risk.SeverityRed, ClassifyNOTAMText("TEMPORARY RESTRICTED AREA ESTABLISHED").Severity)
}

func TestNOTAMs_ExpandsTemplate(t *testing.T) {
	var requested string
	n := &NOTAMs{
		urlTemplate: "https://notams.example/search?lat={lat}&lon={lon}&from={start}",
		fetcher: fetchFunc(func(_ context.Context, raw string) ([]byte, error) {
			requested = raw
			return []byte("nothing to report"), nil
		}),
	}
	f := n.Evaluate(context.Background(), testRequest())
	require.Equal(t, risk.SeverityGreen, f.Severity)
	require.Equal(t, "https://notams.example/search?lat=51.5000&lon=-0.1200&from=2026-06-01T09:30:00Z", requested)

	unset := &NOTAMs{fetcher: staticFetcher("")}
	require.Equal(t, risk.SeverityUnknown, unset.Evaluate(context.Background(), testRequest()).Severity)
}

func TestSolarActivity(t *testing.T) {
	table := `[["time_tag","Kp","a_running","station_count"],["2026-06-01 00:00:00.000","2.33","9","8"],["2026-06-01 03:00:00.000","%s","9","8"]]`
	objects := `[{"time_tag":"2026-06-01T00:00:00","Kp":1.0},{"time_tag":"2026-06-01T03:00:00","Kp":%s}]`

	tests := []struct {
		body string
		want risk.Severity
	}{
		{strings.Replace(table, "%s", "3.00", 1), risk.SeverityGreen},
		{strings.Replace(table, "%s", "5.33", 1), risk.SeverityAmber},
		{strings.Replace(table, "%s", "7.00", 1), risk.SeverityRed},
		{strings.Replace(objects, "%s", "5.67", 1), risk.SeverityAmber},
		{`{"oops":true}`, risk.SeverityUnknown},
	}
	for _, tt := range tests {
		s := &SolarActivity{url: "https://swpc.example", fetcher: staticFetcher(tt.body)}
		require.Equal(t, tt.want, s.Evaluate(context.Background(), testRequest()).Severity, tt.body)
	}
}

func TestAirspace(t *testing.T) {
	var requested string
	a := &Airspace{
		proxyURL: "https://proxy.example/get",
		fetcher: fetchFunc(func(_ context.Context, raw string) ([]byte, error) {
			requested = raw
			return []byte(`{"contents":"<div class=\"zone\">No Fly Zone</div>"}`), nil
		}),
	}
	f := a.Evaluate(context.Background(), testRequest())
	require.Equal(t, risk.SeverityRed, f.Severity)
	require.Equal(t, MapURL(risk.Point{Lat: 51.5, Lon: -0.12}), f.ReferenceLink)

	u, err := url.Parse(requested)
	require.NoError(t, err)
	require.Equal(t, f.ReferenceLink, u.Query().Get("url"))

	quiet := &Airspace{proxyURL: "https://proxy.example/get", fetcher: staticFetcher(`{"contents":"<html>map</html>"}`)}
	require.Equal(t, risk.SeverityAmber, quiet.Evaluate(context.Background(), testRequest()).Severity)
}

func TestGroundHazards(t *testing.T) {
	tests := []struct {
		body string
		want risk.Severity
	}{
		{`{"elements":[]}`, risk.SeverityGreen},
		{`{"elements":[{"tags":{"power":"line"}},{"tags":{"railway":"rail"}}]}`, risk.SeverityAmber},
		{`{"elements":[{"tags":{"power":"line"}},{"tags":{"amenity":"prison","name":"HMP"}}]}`, risk.SeverityRed},
	}
	for _, tt := range tests {
		var requested string
		g := &GroundHazards{
			baseURL: "https://overpass.example/api/interpreter",
			fetcher: fetchFunc(func(_ context.Context, raw string) ([]byte, error) {
				requested = raw
				return []byte(tt.body), nil
			}),
		}
		f := g.Evaluate(context.Background(), testRequest())
		require.Equal(t, tt.want, f.Severity, tt.body)

		u, err := url.Parse(requested)
		require.NoError(t, err)
		require.Contains(t, u.Query().Get("data"), `["amenity"="prison"]`)
	}
}

func TestNearestCare(t *testing.T) {
	f := NearestCare{}.Evaluate(context.Background(), testRequest())
	require.Equal(t, risk.SeverityGreen, f.Severity)
	require.Contains(t, f.ReferenceLink, "@51.50000,-0.12000,10z")
}

func TestCredentialExpiry(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*identity.CredentialSet)
		want   risk.Severity
	}{
		{name: "valid", mutate: func(*identity.CredentialSet) {}, want: risk.SeverityGreen},
		{name: "missing pilot id", mutate: func(c *identity.CredentialSet) { c.PilotID = "" }, want: risk.SeverityRed},
		{name: "missing operator id", mutate: func(c *identity.CredentialSet) { c.OperatorID = "" }, want: risk.SeverityRed},
		{name: "expired before flight", mutate: func(c *identity.CredentialSet) { c.PilotExpiry = "2026-05-31" }, want: risk.SeverityRed},
		{name: "valid on flight day", mutate: func(c *identity.CredentialSet) { c.OperatorExpiry = "2026-06-01" }, want: risk.SeverityAmber},
		{name: "expires within warning window", mutate: func(c *identity.CredentialSet) { c.PilotExpiry = "2026-06-10" }, want: risk.SeverityAmber},
		{name: "expiry not recorded", mutate: func(c *identity.CredentialSet) { c.PilotExpiry = "" }, want: risk.SeverityAmber},
		{
			name: "organisation operator expired",
			mutate: func(c *identity.CredentialSet) {
				c.OrgOperatorID = "GBR-OP-ORG"
				c.OrgOperatorExpiry = "2026-01-01"
			},
			want: risk.SeverityRed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			tt.mutate(&req.Credentials)
			f := (&CredentialExpiry{}).Evaluate(context.Background(), req)
			require.Equal(t, tt.want, f.Severity, f.Detail)
		})
	}
}
