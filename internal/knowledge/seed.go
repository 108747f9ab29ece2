package knowledge

// DefaultKnowledgeBase returns the built-in reference documents the index is
// seeded with when no external index is configured.
func DefaultKnowledgeBase() []Document {
	return []Document{
		{
			SourceID: "OWASP-SQLi",
			Text: "SQL Injection (SQLi) indicators include ' or 1=1 and UNION SELECT in request " +
				"parameters. Mitigate with parameterized queries and strict input validation. " +
				"Reference: https://owasp.org/www-community/attacks/SQL_Injection",
		},
		{
			SourceID: "OWASP-XSS",
			Text: "Cross-Site Scripting (XSS) indicators include <script> tags, onerror= handlers " +
				"and javascript: URLs. Mitigate with context-aware output encoding and a strict " +
				"Content-Security-Policy. Reference: https://owasp.org/www-community/attacks/xss/",
		},
		{
			SourceID: "OWASP-PathTraversal",
			Text: "Path Traversal indicators are ../ or ..\\ sequences targeting files like " +
				"/etc/passwd. Mitigate by canonicalizing paths and rejecting traversal sequences. " +
				"Reference: https://owasp.org/www-community/attacks/Path_Traversal",
		},
		{
			SourceID: "Scanning-Tools",
			Text: "Reconnaissance scanning can be identified by user agents such as Nmap, Nikto, " +
				"sqlmap or gobuster, and by probes for /.git/, /.env or /wp-login.php. Mitigate " +
				"with rate limiting and user-agent filtering at the edge.",
		},
		{
			SourceID: "Security-Headers",
			Text: "Missing security headers such as Strict-Transport-Security, " +
				"Content-Security-Policy, X-Frame-Options, X-Content-Type-Options, " +
				"Referrer-Policy and Permissions-Policy weaken browser-side defenses. Add them " +
				"via add_header directives in nginx or Header set in Apache.",
		},
	}
}
