// Package routes declares the application's navigation table.
package routes

import (
	"novelshelf/framework"
	"novelshelf/framework/router"
)

const (
	Dashboard         = "Dashboard"
	DashboardRedirect = "DashboardRedirect"
	Novels            = "Novels"
	NovelDetail       = "NovelDetail"
	ChapterDetail     = "ChapterDetail"
	Search            = "Search"
	Upload            = "Upload"
	Tasks             = "Tasks"
	Auth              = "Auth"
	NotFound          = "NotFound"
)

// Views supplies the component loader of every page in the table.
type Views interface {
	Home() framework.ComponentLoader
	Dashboard() framework.ComponentLoader
	Novels() framework.ComponentLoader
	NovelDetail() framework.ComponentLoader
	Chapter() framework.ComponentLoader
	Search() framework.ComponentLoader
	Upload() framework.ComponentLoader
	Tasks() framework.ComponentLoader
	Auth() framework.ComponentLoader
}

func Table(views Views) []framework.Route {
	return []framework.Route{
		{
			Path:      "/",
			Component: views.Home(),
			Children: []framework.Route{
				{Path: "", Name: Dashboard, Component: views.Dashboard()},
				{Path: "/dashboard", Name: DashboardRedirect, Redirect: "/"},
				{Path: "/novels", Name: Novels, Component: views.Novels()},
				{
					Path:      "/novel/:novelId",
					Name:      NovelDetail,
					Component: views.NovelDetail(),
					Props:     novelProps,
				},
				{Path: "/novel/:novelId/chapter/:chapterId", Name: ChapterDetail, Component: views.Chapter()},
				{Path: "/search", Name: Search, Component: views.Search()},
				{Path: "/upload", Name: Upload, Component: views.Upload()},
				{Path: "/tasks", Name: Tasks, Component: views.Tasks()},
			},
		},
		{Path: "/auth", Name: Auth, Component: views.Auth()},
		{Path: "/:pathMatch(.*)*", Name: NotFound, Redirect: "/"},
	}
}

func New(views Views) (*router.Router, error) {
	return router.New(Table(views))
}

func novelProps(location framework.Location) framework.Props {
	novelID, _ := location.Param("novelId")
	return framework.Props{"novelId": novelID}
}
