// Package scraper runs the four user-facing actions against a site.
//
// Every action starts by walking the post feed of one user, or of the
// logged-in account's favorites:
//
//   - ListFiles prints one line per file as
//     {published}:{type}[:{size}]:{title}:{url}
//   - DownloadFiles fetches those files under
//     {output}/{user id}/{post title}/{name}
//   - ListCollabs prints the handles mentioned in posts and their profile URL
//     when the handle exists on the site
//   - ListLinks prints every https link found in posts
//
// The date and post id window only applies to the file actions. The collab
// and link actions always scan the whole history.
//
// Usage:
//
//	client := site.NewClient(cfg.Site)
//	s := scraper.New(cfg, client, os.Stdout)
//	summary, err := s.DownloadFiles(ctx, scraper.Request{UserID: "12345"})
package scraper
