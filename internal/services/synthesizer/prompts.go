package synthesizer

import (
	"fmt"
	"strings"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

// maxPromptFindings bounds how many matched lines are quoted in the prompt;
// the full list still ships in the report.
const maxPromptFindings = 10

func buildPrompt(findings []domain.Finding, snippets []domain.KnowledgeSnippet, sctx SourceContext) string {
	switch sctx.Kind {
	case domain.KindHeaderScan:
		return headerPrompt(findings, snippets, sctx)
	case domain.KindInteractiveScrape:
		return crawlPrompt(findings, snippets, sctx)
	default:
		return logPrompt(findings, snippets, sctx)
	}
}

func logPrompt(findings []domain.Finding, snippets []domain.KnowledgeSnippet, sctx SourceContext) string {
	var b strings.Builder
	b.WriteString("You are a world-class cybersecurity analyst and incident responder. ")
	fmt.Fprintf(&b, "Provide a comprehensive, clear and actionable security report for the %s access log excerpt below.\n\n", sctx.Format)

	writeContext(&b, snippets)

	fmt.Fprintf(&b, "Scan summary: %s\n\n", Summary(findings, sctx.Stats))
	if len(findings) > 0 {
		b.WriteString("Matched log lines:\n")
		writeFindings(&b, findings)
		b.WriteString("\n")
	} else {
		b.WriteString("The deterministic scan found no matches; assess whether the traffic looks benign.\n\n")
	}

	b.WriteString(`Structure the response in Markdown with these sections:
## 1. Threat Classification & Severity
State the most likely attack pattern (SQL Injection, Cross-Site Scripting, Path Traversal, Reconnaissance Scan) or "No Immediate Threat Detected", and assign a severity (Critical, High, Medium, Low, Informational) with brief justification.
## 2. Detailed Analysis & Indicators
Explain the classification, quoting the malicious parts of the quoted lines as indicators of compromise.
## 3. Multi-Layer Hardening Recommendations
Prioritized steps for the web server layer (` + serverName(sctx.Format) + `/WAF rules), the application layer and the network layer.
## 4. Incident Response Next Steps
A short actionable checklist.
## 5. Further Reading
Two or three authoritative reference links drawn from the context above.
Do not include a title or date; begin directly with the first section heading.`)
	return b.String()
}

func headerPrompt(findings []domain.Finding, snippets []domain.KnowledgeSnippet, sctx SourceContext) string {
	var missing []string
	for _, f := range findings {
		if f.Category != domain.CategoryHeaderMissing {
			continue
		}
		fields := strings.Fields(f.Line)
		if len(fields) >= 2 {
			missing = append(missing, fields[1])
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "As a cybersecurity expert, you are reviewing the HTTP security headers for the website `%s`.\n\n", sctx.Target)
	writeContext(&b, snippets)

	if len(missing) == 0 {
		b.WriteString("All recommended security headers are present. Write a short confirmation in Markdown stating that no remediation is needed.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "The following security headers are missing: **%s**.\n\n", strings.Join(missing, ", "))
	b.WriteString(`Provide a concise, actionable report in Markdown with these sections:
## 1. Overall Security Grade
A letter grade (A-F) based on the number and importance of the missing headers, with brief reasoning.
## 2. Impact of Missing Headers
The risk of each missing header, as bullet points.
## 3. Nginx Remediation Guide
One ready-to-use nginx configuration code block with the add_header directives fixing all missing headers.
## 4. Apache Remediation Guide
One ready-to-use Apache configuration code block (or .htaccess) with the equivalent directives.`)
	return b.String()
}

func crawlPrompt(findings []domain.Finding, snippets []domain.KnowledgeSnippet, sctx SourceContext) string {
	var b strings.Builder
	b.WriteString("You are an expert security analyst with 10 years of experience defending against global hacking threats. ")
	b.WriteString("You have been provided with the results of a web crawl.\n\n")

	writeContext(&b, snippets)

	b.WriteString("Crawl summary:\n")
	if sctx.Detail != "" {
		b.WriteString(sctx.Detail)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Scan summary: %s\n", Summary(findings, sctx.Stats))
	if len(findings) > 0 {
		b.WriteString("Surface observations:\n")
		writeFindings(&b, findings)
	}

	b.WriteString(`
Write a professional security assessment in Markdown. Do not include a title or date; begin directly with the first section heading. Include:
## Potential Attack Surface
Analyze the discovered forms and pages as vectors for SQL injection, XSS or credential stuffing.
## Recommended Actions
Concrete next steps for a security administrator: penetration testing of identified forms, input validation review, rate limiting.
## Defending Against Malicious Scrapers
General advice on identifying and blocking malicious bots, referencing the user agent used for this scan.`)
	return b.String()
}

func writeContext(b *strings.Builder, snippets []domain.KnowledgeSnippet) {
	if len(snippets) == 0 {
		return
	}
	b.WriteString("Context from the security knowledge base:\n")
	for _, s := range snippets {
		fmt.Fprintf(b, "- [%s] %s\n", s.SourceID, s.Text)
	}
	b.WriteString("\n")
}

func writeFindings(b *strings.Builder, findings []domain.Finding) {
	n := len(findings)
	if n > maxPromptFindings {
		n = maxPromptFindings
	}
	for _, f := range findings[:n] {
		fmt.Fprintf(b, "- line %d (%s): %s\n", f.LineNumber, f.Category, f.Line)
	}
	if len(findings) > n {
		fmt.Fprintf(b, "- ... and %d more\n", len(findings)-n)
	}
}

func serverName(format domain.SourceFormat) string {
	if format == domain.SourceApache {
		return "Apache"
	}
	return "Nginx"
}
