package plugins

import "strings"

// PluginID is a closed set of tool identifiers. Downstream dispatch switches
// on this type; anything outside the set must be coerced to PluginNone before
// it leaves this package.
type PluginID string

const (
	PluginNone      PluginID = "none"
	PluginWebSearch PluginID = "websearch"

	PluginCVEMap       PluginID = "cvemap"
	PluginSubfinder    PluginID = "subfinder"
	PluginGoLinkFinder PluginID = "golinkfinder"
	PluginNuclei       PluginID = "nuclei"
	PluginKatana       PluginID = "katana"
	PluginHTTPX        PluginID = "httpx"
	PluginNaabu        PluginID = "naabu"
	PluginDNSX         PluginID = "dnsx"
	PluginAlterX       PluginID = "alterx"
)

// Priority orders descriptors in the classifier prompt.
type Priority string

const (
	PriorityLow     Priority = "Low"
	PriorityMedium  Priority = "Medium"
	PriorityHigh    Priority = "High"
	PriorityHighest Priority = "Highest"
)

// Descriptor is a static catalog entry. The catalog is process-wide immutable
// configuration, built once and shared read-only across all requests.
type Descriptor struct {
	ID             PluginID
	Priority       Priority
	Description    string
	UsageScenarios []string
}

var catalog = []Descriptor{
	{
		ID:          PluginCVEMap,
		Priority:    PriorityHigh,
		Description: "CVEMAP helps explore and filter CVEs based on criteria like vendor, product, and severity.",
		UsageScenarios: []string{
			"Identifying vulnerabilities in specific software or libraries.",
			"Filtering CVEs by severity for risk assessment.",
			"List CVEs in specific software or libraries.",
		},
	},
	{
		ID:          PluginSubfinder,
		Priority:    PriorityHigh,
		Description: "Subfinder discovers valid subdomains for websites using passive sources. It's fast and efficient.",
		UsageScenarios: []string{
			"Enumerating subdomains for security testing.",
			"Gathering subdomains for attack surface analysis.",
		},
	},
	{
		ID:          PluginGoLinkFinder,
		Priority:    PriorityMedium,
		Description: "GoLinkFinder extracts endpoints from HTML and JavaScript files, helping identify URLs within a target domain.",
		UsageScenarios: []string{
			"Finding hidden API endpoints.",
			"Extracting URLs from web applications.",
		},
	},
	{
		ID:          PluginNuclei,
		Priority:    PriorityHigh,
		Description: "Nuclei scans for vulnerabilities in apps, infrastructure, and networks to identify and mitigate risks.",
		UsageScenarios: []string{
			"Scanning web applications for known vulnerabilities.",
			"Automating vulnerability assessments.",
		},
	},
	{
		ID:          PluginKatana,
		Priority:    PriorityMedium,
		Description: "Katana is a fast web crawler designed to efficiently discover endpoints in both headless and non-headless modes.",
		UsageScenarios: []string{
			"Crawling websites to map all endpoints.",
			"Discovering hidden resources on a website.",
		},
	},
	{
		ID:          PluginHTTPX,
		Priority:    PriorityHigh,
		Description: "HTTPX probes web servers, gathering information like status codes, headers, and technologies.",
		UsageScenarios: []string{
			"Analyzing server responses.",
			"Detecting technologies and services used on a server.",
		},
	},
	{
		ID:          PluginNaabu,
		Priority:    PriorityHigh,
		Description: "Naabu is a port scanning tool that quickly enumerates open ports on target hosts, supporting SYN, CONNECT, and UDP scans.",
		UsageScenarios: []string{
			"Scanning for open ports on a network.",
			"Identifying accessible services on a host.",
		},
	},
	{
		ID:          PluginDNSX,
		Priority:    PriorityLow,
		Description: "DNSX runs multiple DNS queries to discover records and perform DNS brute-forcing with user-supplied resolvers.",
		UsageScenarios: []string{
			"Querying DNS records for a domain.",
			"Brute-forcing subdomains.",
		},
	},
	{
		ID:          PluginAlterX,
		Priority:    PriorityLow,
		Description: "AlterX generates custom subdomain wordlists using DSL patterns, enriching enumeration pipelines.",
		UsageScenarios: []string{
			"Creating wordlists for subdomain enumeration.",
			"Generating custom permutations for subdomains.",
		},
	},
	{
		ID:          PluginNone,
		Priority:    PriorityHighest,
		Description: "This option is used when no specific plugin is suitable for the user's request, typically for informational queries.",
		UsageScenarios: []string{
			"User asks for general information.",
			"User asks for specific {plugin ID} information.",
			"The request is informational and does not require direct plugin intervention.",
			"How to run a {plugin ID} locally.",
			"User requests conceptual explanations.",
			"User inquires about installation instructions.",
			"tell me about {plugin ID}",
			"how can I use this wordlist for attack",
			"what can you tell me about those domains",
			"what plugin would you recommend for subdomain discovery",
			"what tools can I use to scan domains?",
			"explain how to use {plugin ID}",
		},
	},
}

var detectable = func() map[PluginID]bool {
	set := make(map[PluginID]bool, len(catalog))
	for _, d := range catalog {
		set[d.ID] = true
	}
	return set
}()

// Catalog returns the full descriptor list in prompt order.
func Catalog() []Descriptor {
	return catalog
}

// Clamp coerces a raw classifier output to the catalog id set. Anything that
// is not exactly one known id, after trimming and lower-casing, becomes
// PluginNone.
func Clamp(raw string) PluginID {
	id := PluginID(strings.ToLower(strings.TrimSpace(raw)))
	if detectable[id] {
		return id
	}
	return PluginNone
}

// Parse resolves a caller-selected plugin string. Unlike Clamp it also
// accepts routes that the classifier never emits, such as websearch.
func Parse(raw string) PluginID {
	id := PluginID(strings.ToLower(strings.TrimSpace(raw)))
	if id == PluginWebSearch || detectable[id] {
		return id
	}
	return PluginNone
}

// RenderTable renders the catalog as the flat id|priority|description|scenarios
// table embedded in the classification prompt. The catalog is the only source
// of truth for valid classifier outputs.
func RenderTable() string {
	var b strings.Builder
	for i, d := range catalog {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(d.ID))
		b.WriteByte('|')
		b.WriteString(string(d.Priority))
		b.WriteByte('|')
		b.WriteString(d.Description)
		b.WriteByte('|')
		b.WriteString(strings.Join(d.UsageScenarios, "; "))
	}
	return b.String()
}
